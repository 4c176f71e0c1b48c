package core

import (
	"errors"
)

// Canonical expense categories. Every aggregated cell carries all of them.
const (
	CategoryAluguel        Category = "aluguel"
	CategoryComissoes      Category = "comissoes"
	CategoryExtras         Category = "extras"
	CategoryHonorarios     Category = "honorarios"
	CategoryImpostos       Category = "impostos"
	CategoryPitney         Category = "pitney"
	CategoryTelefone       Category = "telefone"
	CategoryVeiculos       Category = "veiculos"
	CategoryFolhaPagamento Category = "folha_pagamento"
)

type (
	// Category is one of the nine canonical expense buckets.
	Category string

	// BusinessUnit is an AGF as exposed to the dashboard.
	BusinessUnit struct {
		ID   string `json:"id"`
		Name string `json:"nome"`
	}

	// Period identifies a calendar month.
	Period struct {
		Year  int
		Month int
	}
)

var ErrMissingEntityID = errors.New("empresa_id ausente")

var categoryOrder = []Category{
	CategoryAluguel,
	CategoryComissoes,
	CategoryExtras,
	CategoryHonorarios,
	CategoryImpostos,
	CategoryPitney,
	CategoryTelefone,
	CategoryVeiculos,
	CategoryFolhaPagamento,
}

// Categories returns the canonical category keys in display order.
// The returned slice is a copy and can be modified by the caller.
func Categories() []Category {
	out := make([]Category, len(categoryOrder))
	copy(out, categoryOrder)
	return out
}

// IsCanonical reports whether c is one of the nine canonical keys.
func (c Category) IsCanonical() bool {
	for _, k := range categoryOrder {
		if k == c {
			return true
		}
	}
	return false
}

// OrDefault coerces anything outside the canonical set to extras.
func (c Category) OrDefault() Category {
	if c.IsCanonical() {
		return c
	}
	return CategoryExtras
}

func (c Category) String() string {
	return string(c)
}

// Valid reports whether both components are resolved.
// A zero year or month means the record cannot be placed on the timeline.
func (p Period) Valid() bool {
	return p.Year > 0 && p.Month >= 1 && p.Month <= 12
}
