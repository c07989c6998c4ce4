package implementation

import (
	"context"
	"time"

	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
	interfaces "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Repository/Interfaces"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoSensorDataRepository struct {
	coll *mongo.Collection
}

func NewMongoSensorDataRepository(coll *mongo.Collection) *MongoSensorDataRepository {
	return &MongoSensorDataRepository{coll: coll}
}

func (r *MongoSensorDataRepository) InsertReadings(ctx context.Context, samples []aglmodels.SensorData) error {
	if len(samples) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	docs := make([]interface{}, 0, len(samples))
	for i := range samples {
		docs = append(docs, samples[i])
	}
	_, err := r.coll.InsertMany(ctx, docs)
	return err
}

func (r *MongoSensorDataRepository) ListByDevice(ctx context.Context, deviceID string, query interfaces.SensorDataQuery) ([]aglmodels.SensorData, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	filter := bson.M{"device_id": deviceID}
	if query.SensorType != "" {
		filter["sensor_type"] = string(query.SensorType)
	}
	created := bson.M{}
	if query.From != nil {
		created["$gte"] = *query.From
	}
	if query.To != nil {
		created["$lte"] = *query.To
	}
	if len(created) > 0 {
		filter["created_at"] = created
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if query.Limit > 0 {
		opts.SetLimit(int64(query.Limit))
	}

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var samples []aglmodels.SensorData
	if err := cursor.All(ctx, &samples); err != nil {
		return nil, err
	}
	return samples, nil
}

func (r *MongoSensorDataRepository) LatestByDevice(ctx context.Context, deviceID string) ([]aglmodels.SensorData, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"device_id": deviceID}}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}}}},
		{{Key: "$group", Value: bson.M{
			"_id":    "$sensor_type",
			"sample": bson.M{"$first": "$$ROOT"},
		}}},
		{{Key: "$replaceRoot", Value: bson.M{"newRoot": "$sample"}}},
	}

	cursor, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var samples []aglmodels.SensorData
	if err := cursor.All(ctx, &samples); err != nil {
		return nil, err
	}
	return samples, nil
}
