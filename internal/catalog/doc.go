// Package catalog discovers action units: independently executable install
// recipes named <prefix><name><suffix> inside one flat directory, each
// carrying a one-line description in a metadata header.
//
// The catalog also owns the generator that scaffolds new actions from the
// shared template, and a watcher that tells the menu when to rescan.
package catalog
