// Package model defines the products, blocks, accounts and activity records
// shared by the provenance ledger packages.
package model
