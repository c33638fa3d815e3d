package services

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/sirupsen/logrus"
)

// Keys of the reference documents every evaluation reads.
const (
	ReferenceJobDescription = "job_description"
	ReferenceCVRubric       = "scoring_rubric_cv"
	ReferenceProjectRubric  = "scoring_rubric_project"
)

// ReferenceLookup returns the text stored under key, or "" when nothing is stored.
type ReferenceLookup interface {
	GetByKey(ctx context.Context, key string) (string, error)
}

var referenceNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("cv-evaluator/reference"))

// ReferencePointID maps a reference key to its stable point id.
func ReferencePointID(key string) string {
	return uuid.NewSHA1(referenceNamespace, []byte(key)).String()
}

type QdrantService struct {
	client         *qdrant.Client
	collectionName string
	vectorSize     uint64
	log            logrus.FieldLogger
}

func NewQdrantService(urlStr, apiKey, collectionName string, log logrus.FieldLogger) (*QdrantService, error) {
	// Parse URL to extract host, port, and TLS usage
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	host := parsed.Hostname()
	useTLS := parsed.Scheme == "https"

	// For gRPC client, use port 6334 by default (gRPC port)
	port := 6334
	if p := parsed.Port(); p != "" {
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &QdrantService{
		client:         client,
		collectionName: collectionName,
		vectorSize:     768, // text-embedding-004
		log:            log.WithFields(logrus.Fields{"component": "qdrant", "collection": collectionName}),
	}, nil
}

func (q *QdrantService) InitCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if exists {
		q.log.Debug("✅ Collection already exists")
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	q.log.Info("✅ Qdrant collection created")
	return nil
}

// UpsertReference stores text under key, replacing any earlier version.
func (q *QdrantService) UpsertReference(ctx context.Context, key, text string, embedding []float32) error {
	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(ReferencePointID(key)),
		Vectors: qdrant.NewVectors(embedding...),
		Payload: qdrant.NewValueMap(map[string]any{
			"key":  key,
			"text": text,
		}),
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collectionName,
		Wait:           qdrant.PtrOf(true),
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert reference %s: %w", key, err)
	}

	return nil
}

// GetByKey implements ReferenceLookup.
func (q *QdrantService) GetByKey(ctx context.Context, key string) (string, error) {
	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.collectionName,
		Ids:            []*qdrant.PointId{qdrant.NewID(ReferencePointID(key))},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get reference %s: %w", key, err)
	}

	if len(points) == 0 {
		return "", nil
	}

	if text, ok := points[0].GetPayload()["text"]; ok {
		if val, ok := text.GetKind().(*qdrant.Value_StringValue); ok {
			return val.StringValue, nil
		}
	}

	return "", nil
}

func (q *QdrantService) Close() error {
	return q.client.Close()
}
