package auditlog

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoDBReader implements Reader for MongoDB.
type MongoDBReader struct {
	collection *mongo.Collection
}

// NewMongoDBReader creates a new MongoDB audit reader.
func NewMongoDBReader(database *mongo.Database) (*MongoDBReader, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &MongoDBReader{collection: database.Collection(tableName)}, nil
}

// GetRecords returns a paginated list of audit entries.
func (r *MongoDBReader) GetRecords(ctx context.Context, params RecordQueryParams) (*RecordListResult, error) {
	limit, offset := clampLimitOffset(params.Limit, params.Offset)

	pipeline := bson.A{}
	if match := mongoRecordFilter(params); len(match) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: match}})
	}

	pipeline = append(pipeline, bson.D{{Key: "$facet", Value: bson.D{
		{Key: "data", Value: bson.A{
			bson.D{{Key: "$sort", Value: bson.D{{Key: "timestamp", Value: -1}, {Key: "seq", Value: -1}}}},
			bson.D{{Key: "$skip", Value: offset}},
			bson.D{{Key: "$limit", Value: limit}},
		}},
		{Key: "total", Value: bson.A{
			bson.D{{Key: "$count", Value: "count"}},
		}},
	}}})

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate audit records: %w", err)
	}
	defer cursor.Close(ctx)

	var facetResult struct {
		Data  []LogEntry `bson:"data"`
		Total []struct {
			Count int `bson:"count"`
		} `bson:"total"`
	}

	if cursor.Next(ctx) {
		if err := cursor.Decode(&facetResult); err != nil {
			return nil, fmt.Errorf("failed to decode audit facet result: %w", err)
		}
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit cursor: %w", err)
	}

	total := 0
	if len(facetResult.Total) > 0 {
		total = facetResult.Total[0].Count
	}

	entries := facetResult.Data
	if entries == nil {
		entries = make([]LogEntry, 0)
	}

	return &RecordListResult{
		Entries: entries,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	}, nil
}

// GetRecordByID returns a single audit entry by ID.
func (r *MongoDBReader) GetRecordByID(ctx context.Context, id string) (*LogEntry, error) {
	var entry LogEntry

	err := r.collection.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query audit record by id: %w", err)
	}

	return &entry, nil
}

// GetStream returns the entries of one stream ordered by seq.
func (r *MongoDBReader) GetStream(ctx context.Context, streamID string, limit int) (*StreamResult, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "seq", Value: 1}}).
		SetLimit(int64(clampStreamLimit(limit)))

	cursor, err := r.collection.Find(ctx, bson.D{{Key: "stream_id", Value: streamID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit stream: %w", err)
	}
	defer cursor.Close(ctx)

	entries := make([]LogEntry, 0)
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode audit stream: %w", err)
	}

	return &StreamResult{StreamID: streamID, Entries: entries}, nil
}

func mongoRecordFilter(params RecordQueryParams) bson.D {
	match := bson.D{}
	if tsFilter := mongoDateRangeFilter(params.QueryParams); tsFilter != nil {
		match = append(match, bson.E{Key: "timestamp", Value: tsFilter})
	}
	if params.StreamID != "" {
		match = append(match, bson.E{Key: "stream_id", Value: params.StreamID})
	}
	if params.RecordID != "" {
		match = append(match, bson.E{Key: "record_id", Value: params.RecordID})
	}
	if params.RulesetVersion != "" {
		match = append(match, bson.E{Key: "ruleset_version", Value: params.RulesetVersion})
	}
	if params.IsPII != nil {
		match = append(match, bson.E{Key: "is_pii", Value: *params.IsPII})
	}
	if params.Failed != nil {
		match = append(match, bson.E{Key: "failed", Value: *params.Failed})
	}
	return match
}

func mongoDateRangeFilter(params QueryParams) bson.D {
	startZero := params.StartDate.IsZero()
	endZero := params.EndDate.IsZero()

	if !startZero && !endZero {
		return bson.D{{Key: "$gte", Value: params.StartDate.UTC()}, {Key: "$lt", Value: params.EndDate.AddDate(0, 0, 1).UTC()}}
	}
	if !startZero {
		return bson.D{{Key: "$gte", Value: params.StartDate.UTC()}}
	}
	if !endZero {
		return bson.D{{Key: "$lt", Value: params.EndDate.AddDate(0, 0, 1).UTC()}}
	}
	return nil
}
