package mongodb

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/schoolhub/backend/core/user"
)

// userDoc is the stored shape of a user.
type userDoc struct {
	ID               bson.ObjectID `bson:"_id,omitempty"`
	Name             string        `bson:"name"`
	Email            string        `bson:"email"`
	Role             string        `bson:"role"`
	PasswordHash     string        `bson:"password"`
	RefreshTokenHash string        `bson:"refreshToken,omitempty"`
	CreatedAt        time.Time     `bson:"createdAt"`
	UpdatedAt        time.Time     `bson:"updatedAt"`
}

func (d userDoc) toUser() user.User {
	return user.User{
		ID:               d.ID.Hex(),
		Name:             d.Name,
		Email:            d.Email,
		Role:             user.Role(d.Role),
		PasswordHash:     d.PasswordHash,
		RefreshTokenHash: d.RefreshTokenHash,
		CreatedAt:        d.CreatedAt.UTC(),
		UpdatedAt:        d.UpdatedAt.UTC(),
	}
}

// orderFields maps public field names to document fields.
var orderFields = map[string]string{
	"name":      "name",
	"email":     "email",
	"role":      "role",
	"createdAt": "createdAt",
	"updatedAt": "updatedAt",
}

type userRepository struct {
	db   *DB
	coll *mongo.Collection
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db, coll: db.db.Collection(usersCollection)}
}

func objectID(id string) (bson.ObjectID, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return bson.ObjectID{}, user.ErrNotFound
	}
	return oid, nil
}

func (repo *userRepository) findOne(ctx context.Context, filter bson.D) (user.User, error) {
	var doc userDoc
	if err := repo.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "finding user")
	}
	return doc.toUser(), nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	doc := userDoc{
		ID:           bson.NewObjectID(),
		Name:         usr.Name,
		Email:        usr.Email,
		Role:         usr.Role.String(),
		PasswordHash: usr.PasswordHash,
		CreatedAt:    usr.CreatedAt,
		UpdatedAt:    usr.UpdatedAt,
	}
	if _, err := repo.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	// mongo stores milliseconds
	doc.CreatedAt = doc.CreatedAt.Truncate(time.Millisecond)
	doc.UpdatedAt = doc.UpdatedAt.Truncate(time.Millisecond)
	return doc.toUser(), nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	oid, err := objectID(id)
	if err != nil {
		return user.User{}, err
	}
	return repo.findOne(ctx, bson.D{{Key: "_id", Value: oid}})
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.findOne(ctx, bson.D{{Key: "email", Value: email}})
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter) ([]user.User, int, error) {
	query := bson.D{}
	if filter.Role != "" {
		query = append(query, bson.E{Key: "role", Value: filter.Role.String()})
	}

	total, err := repo.coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting users")
	}

	sort := bson.D{}
	for _, ord := range filter.Orderings {
		if field, ok := orderFields[ord.Field]; ok {
			dir := -1
			if ord.Ascending {
				dir = 1
			}
			sort = append(sort, bson.E{Key: field, Value: dir})
		}
	}
	if len(sort) == 0 {
		sort = append(sort, bson.E{Key: "createdAt", Value: -1})
	}
	sort = append(sort, bson.E{Key: "_id", Value: 1})

	page := filter.Page.Normalize()
	opts := options.Find().SetSort(sort).SetSkip(int64(page.Offset())).SetLimit(int64(page.Size))
	cur, err := repo.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying users")
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, errors.Wrap(err, "decoding users")
	}

	users := make([]user.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, doc.toUser())
	}
	return users, int(total), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	oid, err := objectID(usr.ID)
	if err != nil {
		return user.User{}, err
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "name", Value: usr.Name},
		{Key: "email", Value: usr.Email},
		{Key: "role", Value: usr.Role.String()},
		{Key: "password", Value: usr.PasswordHash},
		{Key: "updatedAt", Value: usr.UpdatedAt},
	}}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc userDoc
	err = repo.coll.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: oid}}, update, opts).Decode(&doc)
	switch {
	case err == nil:
		return doc.toUser(), nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return user.User{}, user.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return user.User{}, user.ErrEmailExists
	default:
		return user.User{}, errors.Wrap(err, "updating user")
	}
}

func (repo *userRepository) DeleteUser(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := repo.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return errors.Wrap(err, "deleting user")
	}
	if res.DeletedCount == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (repo *userRepository) SetRefreshTokenHash(ctx context.Context, id, hash string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	update := bson.D{{Key: "$unset", Value: bson.D{{Key: "refreshToken", Value: ""}}}}
	if hash != "" {
		update = bson.D{{Key: "$set", Value: bson.D{{Key: "refreshToken", Value: hash}}}}
	}
	res, err := repo.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: oid}}, update)
	if err != nil {
		return errors.Wrap(err, "setting refresh token hash")
	}
	if res.MatchedCount == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (repo *userRepository) SwapRefreshTokenHash(ctx context.Context, id, oldHash, newHash string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	if oldHash == "" {
		return user.ErrRefreshTokenMismatch
	}
	filter := bson.D{{Key: "_id", Value: oid}, {Key: "refreshToken", Value: oldHash}}
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "refreshToken", Value: newHash}}}}
	res, err := repo.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return errors.Wrap(err, "swapping refresh token hash")
	}
	if res.MatchedCount == 1 {
		return nil
	}

	n, err := repo.coll.CountDocuments(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return errors.Wrap(err, "finding user")
	}
	if n == 0 {
		return user.ErrNotFound
	}
	return user.ErrRefreshTokenMismatch
}

func (repo *userRepository) Ping(ctx context.Context) error {
	return repo.db.Ping(ctx)
}
