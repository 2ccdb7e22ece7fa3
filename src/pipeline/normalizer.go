package pipeline

import "time"

// Resolución de reloj de los timestamps de la fuente. Dos timestamps dentro
// de esta ventana se consideran iguales para clasificar insert vs update.
const sourceClockResolution = time.Millisecond

// Normalize convierte una fila cruda en un ChangeEvent canónico. Nunca falla:
// un registro con campos faltantes produce un evento con EmptyPayload
func Normalize(record RawRecord) *ChangeEvent {

	event := &ChangeEvent{
		EntityType: record.Entity,
		Operation:  classifyOperation(record),
		SourceKey:  record.Key,
		MutatedAt:  record.UpdatedAt,
	}

	payload, ok := buildPayload(record)
	if !ok {
		event.Payload = EmptyPayload{}
		return event
	}

	event.Payload = payload
	return event
}

func classifyOperation(record RawRecord) Operation {
	if record.DeletedAt != nil {
		return OperationDelete
	}

	delta := record.UpdatedAt.Sub(record.CreatedAt)
	if delta < 0 {
		delta = -delta
	}

	if delta <= sourceClockResolution {
		return OperationInsert
	}

	return OperationUpdate
}

func buildPayload(record RawRecord) (Payload, bool) {
	if record.Fields == nil {
		return nil, false
	}

	switch record.Entity {
	case EntityAccount:
		return buildAccountPayload(record.Fields)
	case EntityCreator:
		return buildCreatorPayload(record.Fields)
	case EntityContent:
		return buildContentPayload(record.Fields)
	case EntityAsset:
		return buildAssetPayload(record.Fields)
	case EntityTransaction:
		return buildTransactionPayload(record.Fields)
	case EntityRoyaltyPayment:
		return buildRoyaltyPaymentPayload(record.Fields)
	default:
		return nil, false
	}
}

func buildAccountPayload(fields map[string]interface{}) (Payload, bool) {
	id, okID := fieldInt64(fields, "id")
	email, okEmail := fieldString(fields, "email")
	status, okStatus := fieldString(fields, "status")

	if !okID || !okEmail || !okStatus {
		return nil, false
	}

	displayName, _ := fieldString(fields, "display_name")
	balance, _ := fieldInt64(fields, "balance_cents")

	return AccountPayload{
		ID:           id,
		Email:        email,
		DisplayName:  displayName,
		Status:       status,
		BalanceCents: balance,
	}, true
}

func buildCreatorPayload(fields map[string]interface{}) (Payload, bool) {
	id, okID := fieldInt64(fields, "id")
	accountID, okAccount := fieldInt64(fields, "account_id")
	displayName, okName := fieldString(fields, "display_name")

	if !okID || !okAccount || !okName {
		return nil, false
	}

	bio, _ := fieldString(fields, "bio")
	verified, _ := fieldBool(fields, "verified")

	return CreatorPayload{
		ID:          id,
		AccountID:   accountID,
		DisplayName: displayName,
		Bio:         bio,
		Verified:    verified,
	}, true
}

func buildContentPayload(fields map[string]interface{}) (Payload, bool) {
	id, okID := fieldInt64(fields, "id")
	creatorID, okCreator := fieldInt64(fields, "creator_id")
	title, okTitle := fieldString(fields, "title")
	status, okStatus := fieldString(fields, "status")

	if !okID || !okCreator || !okTitle || !okStatus {
		return nil, false
	}

	category, _ := fieldString(fields, "category")
	price, _ := fieldInt64(fields, "price_cents")

	return ContentPayload{
		ID:         id,
		CreatorID:  creatorID,
		Title:      title,
		Category:   category,
		PriceCents: price,
		Status:     status,
	}, true
}

func buildAssetPayload(fields map[string]interface{}) (Payload, bool) {
	id, okID := fieldInt64(fields, "id")
	contentID, okContent := fieldInt64(fields, "content_id")
	uri, okURI := fieldString(fields, "uri")

	if !okID || !okContent || !okURI {
		return nil, false
	}

	mimeType, _ := fieldString(fields, "mime_type")
	sizeBytes, _ := fieldInt64(fields, "size_bytes")

	return AssetPayload{
		ID:        id,
		ContentID: contentID,
		URI:       uri,
		MimeType:  mimeType,
		SizeBytes: sizeBytes,
	}, true
}

func buildTransactionPayload(fields map[string]interface{}) (Payload, bool) {
	id, okID := fieldInt64(fields, "id")
	accountID, okAccount := fieldInt64(fields, "account_id")
	contentID, okContent := fieldInt64(fields, "content_id")
	amount, okAmount := fieldInt64(fields, "amount_cents")
	currency, okCurrency := fieldString(fields, "currency")
	status, okStatus := fieldString(fields, "status")

	if !okID || !okAccount || !okContent || !okAmount || !okCurrency || !okStatus {
		return nil, false
	}

	return TransactionPayload{
		ID:          id,
		AccountID:   accountID,
		ContentID:   contentID,
		AmountCents: amount,
		Currency:    currency,
		Status:      status,
	}, true
}

func buildRoyaltyPaymentPayload(fields map[string]interface{}) (Payload, bool) {
	id, okID := fieldInt64(fields, "id")
	creatorID, okCreator := fieldInt64(fields, "creator_id")
	transactionID, okTx := fieldInt64(fields, "transaction_id")
	amount, okAmount := fieldInt64(fields, "amount_cents")
	currency, okCurrency := fieldString(fields, "currency")
	period, okPeriod := fieldString(fields, "period")

	if !okID || !okCreator || !okTx || !okAmount || !okCurrency || !okPeriod {
		return nil, false
	}

	status, _ := fieldString(fields, "status")

	return RoyaltyPaymentPayload{
		ID:            id,
		CreatorID:     creatorID,
		TransactionID: transactionID,
		AmountCents:   amount,
		Currency:      currency,
		Period:        period,
		Status:        status,
	}, true
}

func fieldString(fields map[string]interface{}, key string) (string, bool) {
	v, ok := fields[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func fieldInt64(fields map[string]interface{}, key string) (int64, bool) {
	v, ok := fields[key]
	if !ok || v == nil {
		return 0, false
	}

	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

func fieldBool(fields map[string]interface{}, key string) (bool, bool) {
	v, ok := fields[key]
	if !ok || v == nil {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
