package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/observability"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// NameResolver resuelve el display name del creator al momento de escribir,
// porque el índice de búsqueda no puede hacer joins
type NameResolver interface {
	CreatorDisplayName(ctx context.Context, creatorID int64) (string, error)
}

// SearchSink upserta un documento por evento en un índice por entidad,
// usando SourceKey como document id
type SearchSink struct {
	client      *elasticsearch.Client
	indexPrefix string
	resolver    NameResolver
	logger      observability.Logger
}

func NewSearchSink(client *elasticsearch.Client,
	indexPrefix string,
	resolver NameResolver,
	logger observability.Logger) (*SearchSink, error) {

	if client == nil {
		return nil, errors.New("elasticsearch client is required")
	}

	return &SearchSink{
		client:      client,
		indexPrefix: indexPrefix,
		resolver:    resolver,
		logger:      logger,
	}, nil
}

func (ss *SearchSink) Name() string {
	return "search"
}

func (ss *SearchSink) IndexFor(entity EntityType) string {
	return fmt.Sprintf("%s-%s", ss.indexPrefix, entity)
}

func (ss *SearchSink) Write(ctx context.Context, event *ChangeEvent) error {
	if event == nil {
		return nil
	}

	if event.IsEmptyPayload() {
		ss.logger.Warn(ctx, "Evento con payload vacío, no se indexa", nil,
			"sink", ss.Name(), "entity", string(event.EntityType), "key", event.SourceKey)
		return nil
	}

	if event.Operation == OperationDelete {
		return ss.deleteDocument(ctx, event)
	}

	document, err := ss.buildDocument(ctx, event)
	if err != nil {
		return NewPermanentSinkError(ss.Name(), fmt.Errorf("build document: %w", err))
	}

	body, err := json.Marshal(document)
	if err != nil {
		return NewPermanentSinkError(ss.Name(), fmt.Errorf("serialize document: %w", err))
	}

	request := esapi.IndexRequest{
		Index:      ss.IndexFor(event.EntityType),
		DocumentID: event.SourceKey,
		Body:       bytes.NewReader(body),
	}

	response, err := request.Do(ctx, ss.client)
	if err != nil {
		return NewTransientSinkError(ss.Name(), err)
	}
	defer response.Body.Close()

	if response.IsError() {
		return ss.classifyStatus(response.StatusCode,
			fmt.Errorf("index %s/%s: %s", request.Index, event.SourceKey, response.Status()))
	}

	return nil
}

func (ss *SearchSink) deleteDocument(ctx context.Context, event *ChangeEvent) error {
	request := esapi.DeleteRequest{
		Index:      ss.IndexFor(event.EntityType),
		DocumentID: event.SourceKey,
	}

	response, err := request.Do(ctx, ss.client)
	if err != nil {
		return NewTransientSinkError(ss.Name(), err)
	}
	defer response.Body.Close()

	// Borrar un documento que no existe es idempotente, no un error
	if response.StatusCode == http.StatusNotFound {
		return nil
	}

	if response.IsError() {
		return ss.classifyStatus(response.StatusCode,
			fmt.Errorf("delete %s/%s: %s", request.Index, event.SourceKey, response.Status()))
	}

	return nil
}

// buildDocument denormaliza el payload en un documento plano, agregando los
// campos que el índice no puede resolver por sí mismo
func (ss *SearchSink) buildDocument(ctx context.Context,
	event *ChangeEvent) (map[string]interface{}, error) {

	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return nil, err
	}

	document := make(map[string]interface{})
	if err := json.Unmarshal(payloadJSON, &document); err != nil {
		return nil, err
	}

	document["entity_type"] = string(event.EntityType)
	document["mutated_at"] = event.MutatedAt

	if payload, ok := event.Payload.(ContentPayload); ok && ss.resolver != nil {

		displayName, err := ss.resolver.CreatorDisplayName(ctx, payload.CreatorID)

		if err != nil {
			// La denormalización es best-effort: el documento sale sin el
			// nombre y el próximo update del content lo completa
			ss.logger.Warn(ctx, "No se pudo resolver el nombre del creator", err,
				"creator_id", payload.CreatorID, "key", event.SourceKey)
		} else {
			document["creator_display_name"] = displayName
		}
	}

	return document, nil
}

func (ss *SearchSink) classifyStatus(statusCode int, err error) error {
	if statusCode == http.StatusTooManyRequests || statusCode >= 500 {
		return NewTransientSinkError(ss.Name(), err)
	}

	return NewPermanentSinkError(ss.Name(), err)
}

func (ss *SearchSink) Count(ctx context.Context, entity EntityType) (int64, error) {
	request := esapi.CountRequest{
		Index: []string{ss.IndexFor(entity)},
	}

	response, err := request.Do(ctx, ss.client)
	if err != nil {
		return 0, err
	}
	defer response.Body.Close()

	// Un índice que aún no existe cuenta como vacío
	if response.StatusCode == http.StatusNotFound {
		return 0, nil
	}

	if response.IsError() {
		return 0, fmt.Errorf("count %s: %s", ss.IndexFor(entity), response.Status())
	}

	var result struct {
		Count int64 `json:"count"`
	}

	if err := json.NewDecoder(response.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}

	return result.Count, nil
}

func (ss *SearchSink) Ping(ctx context.Context) error {
	response, err := esapi.PingRequest{}.Do(ctx, ss.client)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.IsError() {
		return fmt.Errorf("ping: %s", response.Status())
	}

	return nil
}

func (ss *SearchSink) Close() error {
	return nil
}
