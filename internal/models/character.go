package models

import (
	"encoding/json"
	"fmt"
)

// InventoryLine is a held item. Quantity is always >= 1; an exhausted item is
// removed from the sequence rather than kept at zero.
type InventoryLine struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// UnmarshalJSON accepts both wire representations of an inventory line: a
// bare item name (implicit quantity 1) or a {name, quantity} object. Either
// way the normalized pair form comes out.
func (l *InventoryLine) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		l.Name = name
		l.Quantity = 1
		return nil
	}

	type pair InventoryLine
	var p pair
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("inventory line: %w", err)
	}
	if p.Quantity < 1 {
		p.Quantity = 1
	}
	*l = InventoryLine(p)
	return nil
}

// CharacterSnapshot is the locally held view of the player character. It is
// replaced whole on every mutation; nothing merges into it field by field.
type CharacterSnapshot struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	HP         int             `json:"hp"`
	MaxHP      int             `json:"max_hp"`
	ArmorClass int             `json:"armor_class"`
	Experience int             `json:"experience"`
	Level      int             `json:"level"`
	Money      int             `json:"money"`
	Inventory  []InventoryLine `json:"inventory"`
}

// InventoryDelta describes one narrative turn's inventory and gold changes.
// A delta is applied at most once.
type InventoryDelta struct {
	ItemsAdded   []string `json:"items_added"`
	ItemsRemoved []string `json:"items_removed"`
	GoldChange   int      `json:"gold_change"`
}

// IsZero reports whether applying the delta would change nothing.
func (d InventoryDelta) IsZero() bool {
	return len(d.ItemsAdded) == 0 && len(d.ItemsRemoved) == 0 && d.GoldChange == 0
}

// CharacterPatch carries the fields a character update may replace. Nil
// pointers mean "leave unchanged" on the server side.
type CharacterPatch struct {
	HP         *int             `json:"hp,omitempty"`
	MaxHP      *int             `json:"max_hp,omitempty"`
	Experience *int             `json:"experience,omitempty"`
	Level      *int             `json:"level,omitempty"`
	Money      *int             `json:"money,omitempty"`
	Inventory  *[]InventoryLine `json:"inventory,omitempty"`
}
