// Package semantic owns all vector store operations. Each VectorStore
// instance is bound to one Qdrant collection; the qa and moments
// collections are two instances sharing a connection address but
// nothing else.
package semantic

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// VectorStore is the sole owner of one collection's Qdrant operations.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

// New creates a VectorStore for collection at the given gRPC address.
func New(addr string, collection string) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// Collection returns the collection name this store is bound to.
func (v *VectorStore) Collection() string { return v.collection }

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	return v.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist. Every
// vector in the collection has exactly dims elements; writes with any
// other length are rejected by the store, which is what makes a
// dimension mismatch a configuration error rather than a data error.
func (v *VectorStore) EnsureCollection(ctx context.Context, dims int) error {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			return nil
		}
	}

	_, err = v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", v.collection, err)
	}
	return nil
}

// PointID derives the deterministic point ID for a natural key. The
// same key always maps to the same point, which is what turns Upsert
// into overwrite-on-conflict.
func PointID(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

// Exists reports whether an entry with the given natural key is stored.
func (v *VectorStore) Exists(ctx context.Context, key string) (bool, error) {
	resp, err := v.points.Get(ctx, &pb.GetPoints{
		CollectionName: v.collection,
		Ids: []*pb.PointId{
			{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(key)}},
		},
	})
	if err != nil {
		return false, fmt.Errorf("semantic: get %s: %w", v.collection, err)
	}
	return len(resp.GetResult()) > 0, nil
}

// Upsert writes a keyed entry: the point ID is derived from the natural
// key, so a second write with the same key overwrites in place.
func (v *VectorStore) Upsert(ctx context.Context, e Entry) error {
	if e.Key == "" {
		return fmt.Errorf("semantic: upsert into %s: entry has no natural key", v.collection)
	}
	return v.write(ctx, []*pb.PointStruct{pointStruct(PointID(e.Key), e)})
}

// Insert writes entries append-only under fresh random IDs. No
// existence check happens: re-running an ingestion over the same source
// produces duplicate entries, as documented.
func (v *VectorStore) Insert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	points := make([]*pb.PointStruct, len(entries))
	for i, e := range entries {
		points[i] = pointStruct(uuid.NewString(), e)
	}
	return v.write(ctx, points)
}

func (v *VectorStore) write(ctx context.Context, points []*pb.PointStruct) error {
	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: write %d points to %s: %w", len(points), v.collection, err)
	}
	return nil
}

// Query performs k-NN similarity search: at most topK hits, each with
// similarity ≥ minSimilarity, descending by similarity.
func (v *VectorStore) Query(ctx context.Context, vector []float32, topK int, minSimilarity float32) ([]Match, error) {
	req := &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if minSimilarity > 0 {
		req.ScoreThreshold = &minSimilarity
	}

	resp, err := v.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("semantic: search %s: %w", v.collection, err)
	}

	results := make([]Match, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		m := matchFromPayload(r.GetPayload())
		m.ID = r.GetId().GetUuid()
		m.Similarity = r.GetScore()
		results[i] = m
	}
	return results, nil
}

// Scroll iterates every entry in the collection in pages, calling fn
// for each. Used by re-embedding, which needs the stored text but not
// the stored vectors.
func (v *VectorStore) Scroll(ctx context.Context, pageSize int, fn func(Match) error) error {
	if pageSize <= 0 {
		pageSize = 100
	}
	limit := uint32(pageSize)
	var offset *pb.PointId

	for {
		resp, err := v.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: v.collection,
			Limit:          &limit,
			Offset:         offset,
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		})
		if err != nil {
			return fmt.Errorf("semantic: scroll %s: %w", v.collection, err)
		}

		for _, r := range resp.GetResult() {
			m := matchFromPayload(r.GetPayload())
			m.ID = r.GetId().GetUuid()
			if err := fn(m); err != nil {
				return err
			}
		}

		offset = resp.GetNextPageOffset()
		if offset == nil || len(resp.GetResult()) == 0 {
			return nil
		}
	}
}

// pointStruct converts an Entry to a Qdrant point under the given ID.
func pointStruct(id string, e Entry) *pb.PointStruct {
	return &pb.PointStruct{
		Id: &pb.PointId{
			PointIdOptions: &pb.PointId_Uuid{Uuid: id},
		},
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vector{
				Vector: &pb.Vector{Data: e.Vector},
			},
		},
		Payload: toPayload(e.Payload),
	}
}

func toPayload(fields map[string]any) map[string]*pb.Value {
	payload := make(map[string]*pb.Value, len(fields))
	for k, val := range fields {
		switch tv := val.(type) {
		case string:
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
		case int:
			payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
		case int64:
			payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
		case float64:
			payload[k] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
		case bool:
			payload[k] = &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
		case time.Time:
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv.Format(time.RFC3339)}}
		default:
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
		}
	}
	return payload
}

func matchFromPayload(payload map[string]*pb.Value) Match {
	m := Match{Meta: make(map[string]string)}
	for k, val := range payload {
		s := stringValue(val)
		switch k {
		case "question":
			m.Question = s
		case "answer":
			m.Answer = s
		case "category":
			m.Category = s
		case "content":
			m.Content = s
		case "created_at":
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				m.CreatedAt = t
			}
		default:
			m.Meta[k] = s
		}
	}
	return m
}

func stringValue(v *pb.Value) string {
	switch kind := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return kind.StringValue
	case *pb.Value_IntegerValue:
		return fmt.Sprintf("%d", kind.IntegerValue)
	case *pb.Value_DoubleValue:
		return fmt.Sprintf("%g", kind.DoubleValue)
	case *pb.Value_BoolValue:
		return fmt.Sprintf("%t", kind.BoolValue)
	default:
		return v.GetStringValue()
	}
}
