package wallet

import "github.com/xraph/wallet/types"

// Re-export common types for convenience so users don't have to import types package.

// Tokens is re-exported from types package.
type Tokens = types.Tokens

// Entity is re-exported from types package.
type Entity = types.Entity

// Re-export Tokens helpers
var Sum = types.Sum

// Re-export Entity constructor
var NewEntity = types.NewEntity
