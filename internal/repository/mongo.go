package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/TooLazyToCreate/blood-connect/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	accountsCollection    = "accounts"
	donorsCollection      = "donors"
	emergenciesCollection = "emergencies"
)

// NewMongoStorage connects to uri, ensures indexes and returns repositories
// backed by database dbName.
func NewMongoStorage(ctx context.Context, logger *zap.Logger, uri, dbName string) (*Storage, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	db := client.Database(dbName)
	if err = ensureMongoIndexes(ctx, db); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	logger.Info("Connected to MongoDB", zap.String("database", dbName))
	return &Storage{
		Accounts:    &mongoAccounts{coll: db.Collection(accountsCollection), logger: logger},
		Donors:      &mongoDonors{coll: db.Collection(donorsCollection)},
		Emergencies: &mongoEmergencies{coll: db.Collection(emergenciesCollection)},
		Close:       client.Disconnect,
	}, nil
}

func ensureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	/* Уникальность email обеспечивается индексом, а не проверкой перед вставкой: так нет гонки между двумя регистрациями */
	_, err := db.Collection(accountsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "kind", Value: 1}, {Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("kind_email_unique"),
		},
		{
			Keys:    bson.D{{Key: "sessions.token", Value: 1}},
			Options: options.Index().SetName("sessions_token"),
		},
	})
	if err != nil {
		return fmt.Errorf("mongo accounts indexes: %w", err)
	}
	_, err = db.Collection(donorsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "bloodGroup", Value: 1}, {Key: "city", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("mongo donors indexes: %w", err)
	}
	_, err = db.Collection(emergenciesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("mongo emergencies indexes: %w", err)
	}
	return nil
}

var newestFirst = options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})

type mongoAccounts struct {
	coll   *mongo.Collection
	logger *zap.Logger
}

func (r *mongoAccounts) Create(ctx context.Context, account *model.Account) error {
	if account.Sessions == nil {
		account.Sessions = []model.Session{}
	}
	_, err := r.coll.InsertOne(ctx, account)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("mongo insert account: %w", err)
	}
	return nil
}

func (r *mongoAccounts) findOne(ctx context.Context, filter bson.M) (*model.Account, error) {
	account := &model.Account{}
	err := r.coll.FindOne(ctx, filter).Decode(account)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo find account: %w", err)
	}
	return account, nil
}

func (r *mongoAccounts) GetByEmail(ctx context.Context, kind model.AccountKind, email string) (*model.Account, error) {
	return r.findOne(ctx, bson.M{"kind": kind, "email": email})
}

func (r *mongoAccounts) GetByID(ctx context.Context, kind model.AccountKind, id string) (*model.Account, error) {
	return r.findOne(ctx, bson.M{"_id": id, "kind": kind})
}

func (r *mongoAccounts) List(ctx context.Context, kind model.AccountKind) ([]model.Account, error) {
	cursor, err := r.coll.Find(ctx, bson.M{"kind": kind}, newestFirst)
	if err != nil {
		return nil, fmt.Errorf("mongo list accounts: %w", err)
	}
	result := make([]model.Account, 0)
	if err = cursor.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("mongo decode accounts: %w", err)
	}
	return result, nil
}

func (r *mongoAccounts) Count(ctx context.Context, kind model.AccountKind) (int64, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"kind": kind})
	if err != nil {
		return 0, fmt.Errorf("mongo count accounts: %w", err)
	}
	return n, nil
}

func (r *mongoAccounts) AddSession(ctx context.Context, kind model.AccountKind, id string, session model.Session) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "kind": kind},
		bson.M{"$push": bson.M{"sessions": session}})
	if err != nil {
		return fmt.Errorf("mongo push session: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoAccounts) RemoveSession(ctx context.Context, kind model.AccountKind, id string, token string) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "kind": kind},
		bson.M{"$pull": bson.M{"sessions": bson.M{"token": token}}})
	if err != nil {
		return fmt.Errorf("mongo pull session: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoAccounts) DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	expired := bson.M{"sessions.issuedAt": bson.M{"$lt": cutoff}}
	/* Сначала считаем сами сессии: UpdateMany знает только число изменённых аккаунтов */
	cursor, err := r.coll.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: expired}},
		{{Key: "$unwind", Value: "$sessions"}},
		{{Key: "$match", Value: expired}},
		{{Key: "$count", Value: "n"}},
	})
	if err != nil {
		return 0, fmt.Errorf("mongo count expired sessions: %w", err)
	}
	var counted []struct {
		N int64 `bson:"n"`
	}
	if err = cursor.All(ctx, &counted); err != nil {
		return 0, fmt.Errorf("mongo decode expired sessions: %w", err)
	}

	res, err := r.coll.UpdateMany(ctx, expired,
		bson.M{"$pull": bson.M{"sessions": bson.M{"issuedAt": bson.M{"$lt": cutoff}}}})
	if err != nil {
		return 0, fmt.Errorf("mongo prune sessions: %w", err)
	}
	var pruned int64
	if len(counted) > 0 {
		pruned = counted[0].N
	}
	r.logger.Debug("Pruned sessions", zap.Int64("sessions", pruned), zap.Int64("accounts", res.ModifiedCount))
	return pruned, nil
}

type mongoDonors struct {
	coll *mongo.Collection
}

func (r *mongoDonors) Create(ctx context.Context, donor *model.Donor) error {
	_, err := r.coll.InsertOne(ctx, donor)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("mongo insert donor: %w", err)
	}
	return nil
}

func (r *mongoDonors) GetByID(ctx context.Context, id string) (*model.Donor, error) {
	donor := &model.Donor{}
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(donor)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo find donor: %w", err)
	}
	return donor, nil
}

func (r *mongoDonors) Update(ctx context.Context, donor *model.Donor) error {
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": donor.ID}, donor)
	if err != nil {
		return fmt.Errorf("mongo replace donor: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// caseInsensitive builds an anchored, quoted regex so user input is matched literally.
func caseInsensitive(value string) bson.M {
	return bson.M{"$regex": "^" + regexp.QuoteMeta(value) + "$", "$options": "i"}
}

func donorQuery(filter model.DonorFilter) bson.M {
	query := bson.M{}
	if filter.BloodGroup != "" {
		query["bloodGroup"] = filter.BloodGroup
	}
	if filter.City != "" {
		query["city"] = caseInsensitive(filter.City)
	}
	if filter.State != "" {
		query["state"] = caseInsensitive(filter.State)
	}
	return query
}

func (r *mongoDonors) Search(ctx context.Context, filter model.DonorFilter) ([]model.Donor, error) {
	cursor, err := r.coll.Find(ctx, donorQuery(filter), newestFirst)
	if err != nil {
		return nil, fmt.Errorf("mongo search donors: %w", err)
	}
	result := make([]model.Donor, 0)
	if err = cursor.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("mongo decode donors: %w", err)
	}
	return result, nil
}

type mongoEmergencies struct {
	coll *mongo.Collection
}

func statusQuery(status model.EmergencyStatus) bson.M {
	if status == "" {
		return bson.M{}
	}
	return bson.M{"status": status}
}

func (r *mongoEmergencies) Create(ctx context.Context, request *model.EmergencyRequest) error {
	if _, err := r.coll.InsertOne(ctx, request); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("mongo insert emergency: %w", err)
	}
	return nil
}

func (r *mongoEmergencies) GetByID(ctx context.Context, id string) (*model.EmergencyRequest, error) {
	request := &model.EmergencyRequest{}
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(request)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo find emergency: %w", err)
	}
	return request, nil
}

func (r *mongoEmergencies) List(ctx context.Context, status model.EmergencyStatus) ([]model.EmergencyRequest, error) {
	cursor, err := r.coll.Find(ctx, statusQuery(status), newestFirst)
	if err != nil {
		return nil, fmt.Errorf("mongo list emergencies: %w", err)
	}
	result := make([]model.EmergencyRequest, 0)
	if err = cursor.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("mongo decode emergencies: %w", err)
	}
	return result, nil
}

func (r *mongoEmergencies) Update(ctx context.Context, request *model.EmergencyRequest) error {
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": request.ID}, request)
	if err != nil {
		return fmt.Errorf("mongo replace emergency: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoEmergencies) Count(ctx context.Context, status model.EmergencyStatus) (int64, error) {
	n, err := r.coll.CountDocuments(ctx, statusQuery(status))
	if err != nil {
		return 0, fmt.Errorf("mongo count emergencies: %w", err)
	}
	return n, nil
}
