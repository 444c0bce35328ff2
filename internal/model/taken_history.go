package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// TakenItem is one confirmed intake with a snapshot of the pill name, so
// the audit trail survives pill deletion.
type TakenItem struct {
	PillID uint   `json:"pillId"`
	Name   string `json:"name"`
	Time   string `json:"time"` // HH:MM
}

// TakenHistory groups the confirmed intakes of one user on one date.
// Append-only; independent of dose records.
type TakenHistory struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    int64  `gorm:"index;not null"`
	Date      string `gorm:"size:10;index;not null"` // YYYY-MM-DD
	Items     datatypes.JSON
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ItemList decodes the stored intake items.
func (h *TakenHistory) ItemList() []TakenItem {
	var items []TakenItem
	if len(h.Items) == 0 {
		return nil
	}
	if err := json.Unmarshal(h.Items, &items); err != nil {
		return nil
	}
	return items
}

// AppendItem adds one intake to the day's list.
func (h *TakenHistory) AppendItem(item TakenItem) error {
	items := append(h.ItemList(), item)
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	h.Items = raw
	return nil
}
