// Package domain holds the types shared by the job engine, its ledger
// backends and the step implementations.
package domain
