package pipeline

import (
	"fmt"
	"time"
)

type EntityType string

const (
	EntityAccount        EntityType = "account"
	EntityCreator        EntityType = "creator"
	EntityContent        EntityType = "content"
	EntityAsset          EntityType = "asset"
	EntityTransaction    EntityType = "transaction"
	EntityRoyaltyPayment EntityType = "royalty_payment"
)

// AllEntityTypes retorna el conjunto cerrado de entidades sincronizables
func AllEntityTypes() []EntityType {
	return []EntityType{
		EntityAccount,
		EntityCreator,
		EntityContent,
		EntityAsset,
		EntityTransaction,
		EntityRoyaltyPayment,
	}
}

func ParseEntityType(s string) (EntityType, error) {
	for _, e := range AllEntityTypes() {
		if string(e) == s {
			return e, nil
		}
	}
	return "", fmt.Errorf("unknown entity type: %q", s)
}

type Operation string

const (
	OperationInsert Operation = "insert"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// Payload es la unión cerrada de payloads por entidad. Cada variante es
// fuertemente tipada; EmptyPayload es el centinela para registros malformados.
type Payload interface {
	isPayload()
}

type AccountPayload struct {
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	DisplayName  string `json:"display_name"`
	Status       string `json:"status"`
	BalanceCents int64  `json:"balance_cents"`
}

type CreatorPayload struct {
	ID          int64  `json:"id"`
	AccountID   int64  `json:"account_id"`
	DisplayName string `json:"display_name"`
	Bio         string `json:"bio,omitempty"`
	Verified    bool   `json:"verified"`
}

type ContentPayload struct {
	ID         int64  `json:"id"`
	CreatorID  int64  `json:"creator_id"`
	Title      string `json:"title"`
	Category   string `json:"category,omitempty"`
	PriceCents int64  `json:"price_cents"`
	Status     string `json:"status"`
}

type AssetPayload struct {
	ID        int64  `json:"id"`
	ContentID int64  `json:"content_id"`
	URI       string `json:"uri"`
	MimeType  string `json:"mime_type,omitempty"`
	SizeBytes int64  `json:"size_bytes"`
}

type TransactionPayload struct {
	ID          int64  `json:"id"`
	AccountID   int64  `json:"account_id"`
	ContentID   int64  `json:"content_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
}

type RoyaltyPaymentPayload struct {
	ID            int64  `json:"id"`
	CreatorID     int64  `json:"creator_id"`
	TransactionID int64  `json:"transaction_id"`
	AmountCents   int64  `json:"amount_cents"`
	Currency      string `json:"currency"`
	Period        string `json:"period"`
	Status        string `json:"status"`
}

// EmptyPayload marca un registro al que le faltaban campos requeridos.
// El evento igual se cuenta y se propaga; los sinks lo tratan como no-op.
type EmptyPayload struct{}

func (AccountPayload) isPayload()        {}
func (CreatorPayload) isPayload()        {}
func (ContentPayload) isPayload()        {}
func (AssetPayload) isPayload()          {}
func (TransactionPayload) isPayload()    {}
func (RoyaltyPaymentPayload) isPayload() {}
func (EmptyPayload) isPayload()          {}

// ChangeEvent es la unidad canónica que se mueve por el pipeline
type ChangeEvent struct {
	EntityType EntityType `json:"entity_type"`
	Operation  Operation  `json:"operation"`
	SourceKey  string     `json:"source_key"`
	MutatedAt  time.Time  `json:"mutated_at"`
	Payload    Payload    `json:"payload"`
}

// BusKey es la clave del mensaje en el bus: {entityType}-{mutatedAt}
func (e *ChangeEvent) BusKey() string {
	return fmt.Sprintf("%s-%d", e.EntityType, e.MutatedAt.UnixNano())
}

func (e *ChangeEvent) IsEmptyPayload() bool {
	_, empty := e.Payload.(EmptyPayload)
	return empty || e.Payload == nil
}

// RawRecord es la fila cruda leída de la fuente relacional antes de normalizar
type RawRecord struct {
	Entity    EntityType
	Key       string
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
	Fields    map[string]interface{}
}
