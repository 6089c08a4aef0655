package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"vendoriq_server/core/domain"
	"vendoriq_server/core/port/out"
)

// =============================================================================
// MongoDB User Adapter
// =============================================================================

const collectionUsers = "users"

// UserAdapter implements out.UserRepository using MongoDB.
type UserAdapter struct {
	collection *mongo.Collection
}

// NewUserAdapter creates a new MongoDB user adapter.
func NewUserAdapter(db *mongo.Database) *UserAdapter {
	return &UserAdapter{collection: db.Collection(collectionUsers)}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *UserAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// =============================================================================
// Document Model
// =============================================================================

type userDocument struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Name         string             `bson:"name"`
	Email        string             `bson:"email"`
	PasswordHash string             `bson:"password_hash"`

	GoogleAccessToken  string `bson:"google_access_token,omitempty"`
	GoogleRefreshToken string `bson:"google_refresh_token,omitempty"`

	LastSyncedAt *time.Time `bson:"last_synced_at,omitempty"`

	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// =============================================================================
// Operations
// =============================================================================

// FindByID returns the user, or nil when the id is unknown or malformed.
func (a *UserAdapter) FindByID(ctx context.Context, id string) (*domain.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}

	var doc userDocument
	if err := a.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return toDomainUser(&doc), nil
}

func (a *UserAdapter) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var doc userDocument
	if err := a.collection.FindOne(ctx, bson.M{"email": email}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return toDomainUser(&doc), nil
}

func (a *UserAdapter) Create(ctx context.Context, user *domain.User) (string, error) {
	doc := &userDocument{
		Name:         user.Name,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
		doc.UpdatedAt = doc.CreatedAt
	}

	res, err := a.collection.InsertOne(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("failed to create user: %w", err)
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	return oid.Hex(), nil
}

func (a *UserAdapter) UpdateGoogleTokens(ctx context.Context, id, accessToken, refreshToken string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid user id: %w", err)
	}

	update := bson.M{"$set": bson.M{
		"google_access_token":  accessToken,
		"google_refresh_token": refreshToken,
		"updated_at":           time.Now(),
	}}
	_, err = a.collection.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return fmt.Errorf("failed to update google tokens: %w", err)
	}
	return nil
}

func (a *UserAdapter) DisconnectGoogle(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid user id: %w", err)
	}

	update := bson.M{
		"$unset": bson.M{
			"google_access_token":  "",
			"google_refresh_token": "",
		},
		"$set": bson.M{"updated_at": time.Now()},
	}
	_, err = a.collection.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return fmt.Errorf("failed to disconnect google account: %w", err)
	}
	return nil
}

// UpdateLastSyncedAt advances the sync watermark. Last write wins.
func (a *UserAdapter) UpdateLastSyncedAt(ctx context.Context, id string, syncedAt time.Time) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid user id: %w", err)
	}

	update := bson.M{"$set": bson.M{
		"last_synced_at": syncedAt,
		"updated_at":     time.Now(),
	}}
	_, err = a.collection.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return fmt.Errorf("failed to update sync watermark: %w", err)
	}
	return nil
}

// =============================================================================
// Conversion Helpers
// =============================================================================

func toDomainUser(doc *userDocument) *domain.User {
	return &domain.User{
		ID:                 doc.ID.Hex(),
		Name:               doc.Name,
		Email:              doc.Email,
		PasswordHash:       doc.PasswordHash,
		GoogleAccessToken:  doc.GoogleAccessToken,
		GoogleRefreshToken: doc.GoogleRefreshToken,
		LastSyncedAt:       doc.LastSyncedAt,
		CreatedAt:          doc.CreatedAt,
		UpdatedAt:          doc.UpdatedAt,
	}
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.UserRepository = (*UserAdapter)(nil)
