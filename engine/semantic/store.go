// Package semantic mirrors chunk vectors into Qdrant and serves the
// accelerated search path. The SQLite store stays the source of truth.
package semantic

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/chunkforge/chunkforge/engine/domain"
)

// Payload keys reserved for chunk fields; everything else is metadata.
const (
	payloadContent  = "content"
	payloadProject  = "project_id"
	payloadPosition = "position"
)

type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// VectorStore is the sole owner of all Qdrant operations.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
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

// NewWithClients wires explicit clients; used by tests.
func NewWithClients(points pointsAPI, collections collectionsAPI, collection string) *VectorStore {
	return &VectorStore{points: points, collections: collections, collection: collection}
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	if v.conn == nil {
		return nil
	}
	return v.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist.
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

// Upsert stores the chunks' vectors, keyed by chunk ID.
func (v *VectorStore) Upsert(ctx context.Context, project *domain.Project, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		if c.Embedding == nil {
			continue
		}
		payload := map[string]*pb.Value{
			payloadContent:  {Kind: &pb.Value_StringValue{StringValue: c.Content}},
			payloadProject:  {Kind: &pb.Value_IntegerValue{IntegerValue: project.ID}},
			payloadPosition: {Kind: &pb.Value_IntegerValue{IntegerValue: int64(c.Position)}},
		}
		for k, val := range c.Metadata {
			if k == payloadContent || k == payloadProject || k == payloadPosition {
				continue
			}
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: val}}
		}
		points = append(points, &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: c.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: c.Embedding},
				},
			},
			Payload: payload,
		})
	}
	if len(points) == 0 {
		return nil
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(points), err)
	}
	return nil
}

// DeleteByProject removes all of a project's points. Called when the
// project is deleted.
func (v *VectorStore) DeleteByProject(ctx context.Context, projectID int64) error {
	wait := true
	_, err := v.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{
						projectMatch(projectID),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: delete project %d points: %w", projectID, err)
	}
	return nil
}

// Search performs k-NN search scoped to one project, dropping hits at or
// below threshold.
func (v *VectorStore) Search(ctx context.Context, project *domain.Project, vec []float32, limit int, threshold float32) ([]domain.SearchResult, error) {
	resp, err := v.points.Search(ctx, &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         vec,
		Limit:          uint64(limit),
		ScoreThreshold: &threshold,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		Filter: &pb.Filter{
			Must: []*pb.Condition{
				projectMatch(project.ID),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}

	results := make([]domain.SearchResult, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		// The threshold is strict; Qdrant's is inclusive.
		if r.GetScore() <= threshold {
			continue
		}
		sr := domain.SearchResult{
			ID:         r.GetId().GetUuid(),
			Similarity: float64(r.GetScore()),
			Metadata:   make(map[string]string),
		}
		for k, val := range r.GetPayload() {
			switch k {
			case payloadContent:
				sr.Content = val.GetStringValue()
			case payloadProject, payloadPosition:
				// chunk fields, not metadata
			default:
				sr.Metadata[k] = val.GetStringValue()
			}
		}
		results = append(results, sr)
	}
	return results, nil
}

func projectMatch(projectID int64) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: payloadProject,
				Match: &pb.Match{
					MatchValue: &pb.Match_Integer{Integer: projectID},
				},
			},
		},
	}
}
