package mongodb

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SortField represents a field to sort by
type SortField struct {
	Field      string
	Descending bool
}

// SortMultiple creates a multi-field sort document
func SortMultiple(fields ...SortField) bson.D {
	sort := bson.D{}
	for _, f := range fields {
		if f.Descending {
			sort = append(sort, bson.E{Key: f.Field, Value: -1})
		} else {
			sort = append(sort, bson.E{Key: f.Field, Value: 1})
		}
	}
	return sort
}

// PageOptions returns find options for an offset/limit page
func PageOptions(offset, limit int64, sort bson.D) *options.FindOptions {
	return options.Find().
		SetSort(sort).
		SetSkip(offset).
		SetLimit(limit)
}
