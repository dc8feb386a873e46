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

// mongoTermRepository implements repository.TermRepository
type mongoTermRepository struct {
	collection *mongo.Collection
}

// NewMongoTermRepository creates a new Term repository backed by MongoDB.
func NewMongoTermRepository(db *mongo.Database) repository.TermRepository {
	return &mongoTermRepository{
		collection: db.Collection(termCollectionName),
	}
}

func prepareTerm(term *domain.Term) {
	term.ID = primitive.NewObjectID()
	if term.CreatedAt.IsZero() {
		term.CreatedAt = time.Now().UTC()
	}
	term.UpdatedAt = term.CreatedAt
	if term.Status == "" {
		term.Status = domain.TermScheduled
	}
}

// Create inserts a new term.
func (r *mongoTermRepository) Create(ctx context.Context, term *domain.Term) (primitive.ObjectID, error) {
	if term.TrainerID == primitive.NilObjectID || term.CreatedBy == primitive.NilObjectID {
		return primitive.NilObjectID, errors.New("term requires trainerId and createdBy")
	}
	prepareTerm(term)

	if _, err := r.collection.InsertOne(ctx, term); err != nil {
		return primitive.NilObjectID, err
	}
	return term.ID, nil
}

// CreateMany inserts all terms in a single InsertMany call.
func (r *mongoTermRepository) CreateMany(ctx context.Context, terms []*domain.Term) ([]primitive.ObjectID, error) {
	if len(terms) == 0 {
		return []primitive.ObjectID{}, nil
	}
	docs := make([]interface{}, len(terms))
	ids := make([]primitive.ObjectID, len(terms))
	for i, t := range terms {
		prepareTerm(t)
		docs[i] = t
		ids[i] = t.ID
	}

	if _, err := r.collection.InsertMany(ctx, docs); err != nil {
		return nil, err
	}
	return ids, nil
}

// GetByID retrieves a term by its ID.
func (r *mongoTermRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Term, error) {
	var term domain.Term
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&term); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &term, nil
}

// GetByIDs retrieves the terms with the given IDs.
func (r *mongoTermRepository) GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]domain.Term, error) {
	if len(ids) == 0 {
		return []domain.Term{}, nil
	}
	return r.find(ctx, bson.M{"_id": bson.M{"$in": ids}})
}

// Update writes the editable fields. The status filter makes the write fail if the sweeper
// (or a cancel) moved the term since it was loaded.
func (r *mongoTermRepository) Update(ctx context.Context, term *domain.Term, expected domain.TermStatus) error {
	if term.ID == primitive.NilObjectID {
		return errors.New("term ID is required for update")
	}
	if term.UpdatedAt.IsZero() {
		term.UpdatedAt = time.Now().UTC()
	}

	filter := bson.M{"_id": term.ID, "status": expected}
	update := bson.M{
		"$set": bson.M{
			"capacity":           term.Capacity,
			"startsAt":           term.StartsAt,
			"endsAt":             term.EndsAt,
			"status":             term.Status,
			"trainerId":          term.TrainerID,
			"workoutDescription": term.WorkoutDescription,
			"updatedAt":          term.UpdatedAt,
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return r.missingOrChanged(ctx, term.ID)
	}
	return nil
}

// TransitionStatus performs a conditional status change stamped with at.
func (r *mongoTermRepository) TransitionStatus(ctx context.Context, id primitive.ObjectID, from, to domain.TermStatus, at time.Time) error {
	filter := bson.M{"_id": id, "status": from}
	update := bson.M{"$set": bson.M{"status": to, "updatedAt": at.UTC()}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return r.missingOrChanged(ctx, id)
	}
	return nil
}

// missingOrChanged tells apart a deleted term from one whose status no longer matches.
func (r *mongoTermRepository) missingOrChanged(ctx context.Context, id primitive.ObjectID) error {
	n, err := r.collection.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return repository.ErrUpdateFailed
}

// HasOverlap looks for any scheduled term intersecting [start, end).
func (r *mongoTermRepository) HasOverlap(ctx context.Context, start, end time.Time, excludeID *primitive.ObjectID) (bool, error) {
	filter := bson.M{
		"status":   domain.TermScheduled,
		"startsAt": bson.M{"$lt": end},
		"endsAt":   bson.M{"$gt": start},
	}
	if excludeID != nil {
		filter["_id"] = bson.M{"$ne": *excludeID}
	}

	opts := options.FindOne().SetProjection(bson.M{"_id": 1})
	err := r.collection.FindOne(ctx, filter, opts).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// FinishDue marks every scheduled term that has started as finished.
func (r *mongoTermRepository) FinishDue(ctx context.Context, now time.Time) (int64, error) {
	filter := bson.M{
		"status":   domain.TermScheduled,
		"startsAt": bson.M{"$lte": now},
	}
	update := bson.M{"$set": bson.M{"status": domain.TermFinished, "updatedAt": now.UTC()}}

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

// ListScheduledAfter returns upcoming scheduled terms sorted by start time.
func (r *mongoTermRepository) ListScheduledAfter(ctx context.Context, now time.Time) ([]domain.Term, error) {
	filter := bson.M{
		"status":   domain.TermScheduled,
		"startsAt": bson.M{"$gt": now},
	}
	return r.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "startsAt", Value: 1}}))
}

// ListFinishedEndedBefore returns retention candidates.
func (r *mongoTermRepository) ListFinishedEndedBefore(ctx context.Context, cutoff time.Time) ([]domain.Term, error) {
	filter := bson.M{
		"status": domain.TermFinished,
		"endsAt": bson.M{"$lt": cutoff},
	}
	return r.find(ctx, filter)
}

func (r *mongoTermRepository) find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]domain.Term, error) {
	cursor, err := r.collection.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	terms := []domain.Term{}
	if err = cursor.All(ctx, &terms); err != nil {
		return nil, err
	}
	return terms, cursor.Err()
}

// Delete removes a single term.
func (r *mongoTermRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteFinished removes the listed terms that are still finished.
func (r *mongoTermRepository) DeleteFinished(ctx context.Context, ids []primitive.ObjectID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	filter := bson.M{
		"_id":    bson.M{"$in": ids},
		"status": domain.TermFinished,
	}
	result, err := r.collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

// EnsureTermIndexes creates necessary indexes for the terms collection.
func EnsureTermIndexes(ctx context.Context, collection *mongo.Collection) {
	indexes := []mongo.IndexModel{
		{
			// Overlap check, due-term sweep and upcoming listing
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "startsAt", Value: 1}},
		},
		{
			// Retention sweep
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "endsAt", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "trainerId", Value: 1}},
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	logIndexError(collection, err)
}
