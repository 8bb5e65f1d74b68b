package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/potholewatch/server/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// ReportsCollection is the collection holding report documents
const ReportsCollection = "potholes"

type mongoReportRepo struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewMongoReportRepo creates a ReportRepo over the potholes collection of database
func NewMongoReportRepo(database *mongo.Database) ReportRepo {
	return &mongoReportRepo{
		coll: database.Collection(ReportsCollection),
		now:  time.Now,
	}
}

// EnsureIndexes creates the city index used by Find and AggregateCounts
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	_, err := database.Collection(ReportsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "city", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("%w: create city index: %w", ErrStorage, err)
	}
	return nil
}

func (r *mongoReportRepo) Create(ctx context.Context, report model.Report) (model.Report, error) {
	report, err := prepareReport(report, r.now())
	if err != nil {
		return model.Report{}, err
	}
	if _, err := r.coll.InsertOne(ctx, report); err != nil {
		return model.Report{}, fmt.Errorf("%w: insert report: %w", ErrStorage, err)
	}
	return report, nil
}

func (r *mongoReportRepo) Find(ctx context.Context, city string) ([]model.Report, error) {
	filter := bson.M{}
	if city != "" {
		filter["city"] = city
	}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}})

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: find reports: %w", ErrStorage, err)
	}
	reports := make([]model.Report, 0)
	if err := cur.All(ctx, &reports); err != nil {
		return nil, fmt.Errorf("%w: decode reports: %w", ErrStorage, err)
	}
	for i := range reports {
		reports[i].Timestamp = reports[i].Timestamp.UTC()
	}
	return reports, nil
}

func (r *mongoReportRepo) AggregateCounts(ctx context.Context, order model.SortOrder, limit int) ([]model.CityCount, error) {
	direction := -1
	if order == model.Least {
		direction = 1
	}
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$city"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{
			{Key: "count", Value: direction},
			{Key: "_id", Value: 1},
		}}},
	}
	if limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: limit}})
	}

	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("%w: aggregate reports: %w", ErrStorage, err)
	}
	counts := make([]model.CityCount, 0)
	if err := cur.All(ctx, &counts); err != nil {
		return nil, fmt.Errorf("%w: decode city counts: %w", ErrStorage, err)
	}
	return counts, nil
}

func (r *mongoReportRepo) Count(ctx context.Context) (int64, error) {
	n, err := r.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("%w: count reports: %w", ErrStorage, err)
	}
	return n, nil
}

func (r *mongoReportRepo) Ping(ctx context.Context) error {
	if err := r.coll.Database().Client().Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("%w: ping: %w", ErrStorage, err)
	}
	return nil
}
