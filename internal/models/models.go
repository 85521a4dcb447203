package models

import "time"

// Shipments (relational store, read-only from this service)
type Shipment struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ClientID       string    `gorm:"type:varchar(100);index:idx_client_shipped;not null" json:"client_id"`
	TrackingNumber string    `gorm:"type:varchar(100);index;not null" json:"tracking_number"`
	Carrier        string    `gorm:"type:varchar(100);index" json:"carrier"`
	ShipVia        string    `gorm:"type:varchar(100)" json:"shipvia"`
	State          string    `gorm:"type:varchar(50);index" json:"state"`
	DestinationZip string    `gorm:"type:varchar(20)" json:"destination_zip"`
	Weight         float64   `json:"weight"`
	Spent          float64   `json:"spent"`
	ShippedAt      time.Time `gorm:"index:idx_client_shipped;not null" json:"shipped_at"`
	CreatedAt      time.Time `json:"created_at"`
}

func (Shipment) TableName() string {
	return "shipments"
}

// PeriodRecord is the generic time-series document shape. Collections
// carry different dimension and measure fields, so everything beyond the
// bucketing keys rides in the raw document; this struct documents the
// common keys the query layer relies on.
type PeriodRecord struct {
	ID         string `bson:"_id" json:"_id"`
	PeriodType string `bson:"periodType" json:"periodType"`
	PeriodKey  string `bson:"periodKey" json:"periodKey"`
	ClientID   string `bson:"clientId,omitempty" json:"clientId,omitempty"`
}

// ClientDocument is the clients collection shape in the main database.
type ClientDocument struct {
	ClientID string                 `bson:"client_id" json:"client_id"`
	Name     string                 `bson:"name" json:"name"`
	Contact  map[string]interface{} `bson:"contact,omitempty" json:"contact,omitempty"`
}
