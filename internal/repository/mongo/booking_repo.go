package mongo

import (
	"context"
	"errors"
	"time"

	"mnfit/studio-api/internal/domain"
	"mnfit/studio-api/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoBookingRepository implements repository.BookingRepository
type mongoBookingRepository struct {
	collection *mongo.Collection
}

// NewMongoBookingRepository creates a new Booking repository backed by MongoDB.
func NewMongoBookingRepository(db *mongo.Database) repository.BookingRepository {
	return &mongoBookingRepository{
		collection: db.Collection(bookingCollectionName),
	}
}

// Create inserts a booking. The unique (termId, userId) index turns a racing second insert
// into repository.ErrDuplicate.
func (r *mongoBookingRepository) Create(ctx context.Context, booking *domain.Booking) (primitive.ObjectID, error) {
	if booking.TermID == primitive.NilObjectID || booking.UserID == primitive.NilObjectID {
		return primitive.NilObjectID, errors.New("booking requires termId and userId")
	}

	booking.ID = primitive.NewObjectID()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = time.Now().UTC()
	}
	booking.UpdatedAt = booking.CreatedAt
	if booking.Status == "" {
		booking.Status = domain.BookingActive
	}

	if _, err := r.collection.InsertOne(ctx, booking); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, repository.ErrDuplicate
		}
		return primitive.NilObjectID, err
	}
	return booking.ID, nil
}

// GetByTermAndUser retrieves the single booking of a user on a term.
func (r *mongoBookingRepository) GetByTermAndUser(ctx context.Context, termID, userID primitive.ObjectID) (*domain.Booking, error) {
	var booking domain.Booking
	filter := bson.M{"termId": termID, "userId": userID}
	if err := r.collection.FindOne(ctx, filter).Decode(&booking); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &booking, nil
}

// UpdateStatus persists the status and cancellation timestamp of a booking.
func (r *mongoBookingRepository) UpdateStatus(ctx context.Context, booking *domain.Booking) error {
	if booking.UpdatedAt.IsZero() {
		booking.UpdatedAt = time.Now().UTC()
	}
	update := bson.M{
		"$set": bson.M{
			"status":      booking.Status,
			"cancelledAt": booking.CancelledAt,
			"updatedAt":   booking.UpdatedAt,
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": booking.ID}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete removes one booking.
func (r *mongoBookingRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CountActiveByTerm counts active bookings on one term.
func (r *mongoBookingRepository) CountActiveByTerm(ctx context.Context, termID primitive.ObjectID) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{"termId": termID, "status": domain.BookingActive})
}

// CountActiveByTerms groups active booking counts by term.
func (r *mongoBookingRepository) CountActiveByTerms(ctx context.Context, termIDs []primitive.ObjectID) (map[primitive.ObjectID]int64, error) {
	counts := make(map[primitive.ObjectID]int64, len(termIDs))
	if len(termIDs) == 0 {
		return counts, nil
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"termId": bson.M{"$in": termIDs}, "status": domain.BookingActive}}},
		{{Key: "$group", Value: bson.M{"_id": "$termId", "bookedCount": bson.M{"$sum": 1}}}},
	}
	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		TermID      primitive.ObjectID `bson:"_id"`
		BookedCount int64              `bson:"bookedCount"`
	}
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.TermID] = row.BookedCount
	}
	return counts, nil
}

// CountActiveForUserInRange joins bookings to terms and counts those starting in [from, to).
func (r *mongoBookingRepository) CountActiveForUserInRange(ctx context.Context, userID primitive.ObjectID, from, to time.Time, excludeTermID *primitive.ObjectID) (int64, error) {
	match := bson.M{"userId": userID, "status": domain.BookingActive}
	if excludeTermID != nil {
		match["termId"] = bson.M{"$ne": *excludeTermID}
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$lookup", Value: bson.M{
			"from":         termCollectionName,
			"localField":   "termId",
			"foreignField": "_id",
			"as":           "term",
		}}},
		{{Key: "$unwind", Value: "$term"}},
		{{Key: "$match", Value: bson.M{"term.startsAt": bson.M{"$gte": from, "$lt": to}}}},
		{{Key: "$count", Value: "cnt"}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Count int64 `bson:"cnt"`
	}
	if err = cursor.All(ctx, &rows); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Count, nil
}

// ListActiveByUser returns a user's active bookings, most recently created first.
func (r *mongoBookingRepository) ListActiveByUser(ctx context.Context, userID primitive.ObjectID) ([]domain.Booking, error) {
	filter := bson.M{"userId": userID, "status": domain.BookingActive}
	return r.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
}

// ListByTerm returns every booking on a term, oldest first.
func (r *mongoBookingRepository) ListByTerm(ctx context.Context, termID primitive.ObjectID) ([]domain.Booking, error) {
	return r.find(ctx, bson.M{"termId": termID}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
}

// ListByTerms returns every booking on any of the given terms.
func (r *mongoBookingRepository) ListByTerms(ctx context.Context, termIDs []primitive.ObjectID) ([]domain.Booking, error) {
	if len(termIDs) == 0 {
		return []domain.Booking{}, nil
	}
	return r.find(ctx, bson.M{"termId": bson.M{"$in": termIDs}})
}

func (r *mongoBookingRepository) find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]domain.Booking, error) {
	cursor, err := r.collection.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	bookings := []domain.Booking{}
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, err
	}
	return bookings, cursor.Err()
}

// CancelActiveByTerm deactivates every active booking of a term.
func (r *mongoBookingRepository) CancelActiveByTerm(ctx context.Context, termID primitive.ObjectID, status domain.BookingStatus, at time.Time) (int64, error) {
	filter := bson.M{"termId": termID, "status": domain.BookingActive}
	update := bson.M{
		"$set": bson.M{
			"status":      status,
			"cancelledAt": at,
			"updatedAt":   at,
		},
	}
	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

// DeleteByTerms removes every booking that references one of the terms.
func (r *mongoBookingRepository) DeleteByTerms(ctx context.Context, termIDs []primitive.ObjectID) (int64, error) {
	if len(termIDs) == 0 {
		return 0, nil
	}
	result, err := r.collection.DeleteMany(ctx, bson.M{"termId": bson.M{"$in": termIDs}})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

// EnsureBookingIndexes creates the booking indexes. The compound unique index is what
// guarantees a single booking document per (term, user).
func EnsureBookingIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "termId", Value: 1}, {Key: "userId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "termId", Value: 1}, {Key: "status", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "userId", Value: 1}, {Key: "status", Value: 1}, {Key: "createdAt", Value: -1}},
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	logIndexError(collection, err)
	return err
}
