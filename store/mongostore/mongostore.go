// Package mongostore implements credential.Store on MongoDB.
//
// Documents use the field names of the existing "users" collection
// (password, isEmailVerified, loginAttempts, lockUntil, activeSessions,
// googleId, githubId) so records written by earlier deployments stay
// readable. Every intent is a single FindOneAndUpdate/UpdateOne whose filter
// carries the precondition.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/credential"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const credentialCollection = "users"

type credentialDoc struct {
	ID                       bson.ObjectID `bson:"_id,omitempty"`
	Email                    string        `bson:"email"`
	Username                 string        `bson:"username"`
	Password                 string        `bson:"password,omitempty"`
	Provider                 string        `bson:"provider"`
	GoogleID                 *string       `bson:"googleId,omitempty"`
	GitHubID                 *string       `bson:"githubId,omitempty"`
	IsEmailVerified          bool          `bson:"isEmailVerified"`
	EmailVerificationToken   string        `bson:"emailVerificationToken,omitempty"`
	EmailVerificationExpires *time.Time    `bson:"emailVerificationExpires,omitempty"`
	PasswordResetToken       string        `bson:"passwordResetToken,omitempty"`
	PasswordResetExpires     *time.Time    `bson:"passwordResetExpires,omitempty"`
	TwoFactorEnabled         bool          `bson:"twoFactorEnabled"`
	TwoFactorSecret          string        `bson:"twoFactorSecret,omitempty"`
	Role                     string        `bson:"role"`
	Permissions              []string      `bson:"permissions"`
	LoginAttempts            int           `bson:"loginAttempts"`
	LockUntil                *time.Time    `bson:"lockUntil,omitempty"`
	LastLogin                *time.Time    `bson:"lastLogin,omitempty"`
	ActiveSessions           []string      `bson:"activeSessions"`
	CreatedAt                time.Time     `bson:"createdAt"`
	UpdatedAt                time.Time     `bson:"updatedAt"`
}

// Store implements credential.Store on a MongoDB collection.
type Store struct {
	coll *mongo.Collection
	now  func() time.Time
}

var _ credential.Store = (*Store)(nil)

// New returns a store over db.users. Call EnsureIndexes once at startup.
func New(db *mongo.Database) *Store {
	return &Store{coll: db.Collection(credentialCollection), now: time.Now}
}

// WithClock overrides the clock used for createdAt/updatedAt stamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

// EnsureIndexes creates the uniqueness and token lookup indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "googleId", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
		{Keys: bson.D{{Key: "githubId", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
		{Keys: bson.D{{Key: "emailVerificationToken", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "passwordResetToken", Value: 1}}, Options: options.Index().SetSparse(true)},
	}
	if _, err := s.coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("mongostore: create indexes: %w", err)
	}
	return nil
}

func externalField(p credential.Provider) (string, error) {
	switch p {
	case credential.ProviderGoogle:
		return "googleId", nil
	case credential.ProviderGitHub:
		return "githubId", nil
	}
	return "", fmt.Errorf("mongostore: unsupported provider %q", p)
}

func toDoc(rec *credential.Record) (*credentialDoc, error) {
	doc := &credentialDoc{
		Email:                    rec.Email,
		Username:                 rec.Username,
		Password:                 rec.PasswordHash,
		Provider:                 string(rec.Provider),
		IsEmailVerified:          rec.EmailVerified,
		EmailVerificationToken:   rec.EmailVerificationToken,
		EmailVerificationExpires: rec.EmailVerificationExpires,
		PasswordResetToken:       rec.PasswordResetToken,
		PasswordResetExpires:     rec.PasswordResetExpires,
		TwoFactorEnabled:         rec.TwoFactorEnabled,
		TwoFactorSecret:          rec.TwoFactorSecret,
		Role:                     string(rec.Role),
		Permissions:              nonNil(rec.Permissions),
		LoginAttempts:            rec.FailedLoginCount,
		LockUntil:                rec.LockedUntil,
		LastLogin:                rec.LastLogin,
		ActiveSessions:           nonNil(rec.ActiveSessionIDs),
	}
	if rec.ID != "" {
		oid, err := bson.ObjectIDFromHex(rec.ID)
		if err != nil {
			return nil, fmt.Errorf("mongostore: invalid id %q: %w", rec.ID, err)
		}
		doc.ID = oid
	}
	for p, ext := range rec.ExternalIDs {
		v := ext
		switch p {
		case credential.ProviderGoogle:
			doc.GoogleID = &v
		case credential.ProviderGitHub:
			doc.GitHubID = &v
		default:
			return nil, fmt.Errorf("mongostore: unsupported provider %q", p)
		}
	}
	return doc, nil
}

func (d *credentialDoc) record() *credential.Record {
	rec := &credential.Record{
		ID:                       d.ID.Hex(),
		Email:                    d.Email,
		Username:                 d.Username,
		PasswordHash:             d.Password,
		Provider:                 credential.Provider(d.Provider),
		EmailVerified:            d.IsEmailVerified,
		EmailVerificationToken:   d.EmailVerificationToken,
		EmailVerificationExpires: d.EmailVerificationExpires,
		PasswordResetToken:       d.PasswordResetToken,
		PasswordResetExpires:     d.PasswordResetExpires,
		TwoFactorEnabled:         d.TwoFactorEnabled,
		TwoFactorSecret:          d.TwoFactorSecret,
		Role:                     credential.Role(d.Role),
		Permissions:              nonNil(d.Permissions),
		FailedLoginCount:         d.LoginAttempts,
		LockedUntil:              d.LockUntil,
		LastLogin:                d.LastLogin,
		ActiveSessionIDs:         d.ActiveSessions,
		CreatedAt:                d.CreatedAt,
		UpdatedAt:                d.UpdatedAt,
	}
	if rec.Provider == "" {
		rec.Provider = credential.ProviderLocal
	}
	if rec.Role == "" {
		rec.Role = credential.RoleUser
	}
	if d.GoogleID != nil || d.GitHubID != nil {
		rec.ExternalIDs = make(map[credential.Provider]string, 2)
		if d.GoogleID != nil {
			rec.ExternalIDs[credential.ProviderGoogle] = *d.GoogleID
		}
		if d.GitHubID != nil {
			rec.ExternalIDs[credential.ProviderGitHub] = *d.GitHubID
		}
	}
	return rec
}

func (s *Store) Create(ctx context.Context, rec *credential.Record) (*credential.Record, error) {
	doc, err := toDoc(rec)
	if err != nil {
		return nil, err
	}

	var existing credentialDoc
	err = s.coll.FindOne(ctx, bson.M{"$or": bson.A{
		bson.M{"email": rec.Email},
		bson.M{"username": rec.Username},
	}}).Decode(&existing)
	switch {
	case err == nil && existing.Email == rec.Email:
		return nil, credential.ErrDuplicateEmail
	case err == nil:
		return nil, credential.ErrDuplicateUsername
	case !errors.Is(err, mongo.ErrNoDocuments):
		return nil, fmt.Errorf("mongostore: existence check: %w", err)
	}
	for p, ext := range rec.ExternalIDs {
		field, err := externalField(p)
		if err != nil {
			return nil, err
		}
		n, err := s.coll.CountDocuments(ctx, bson.M{field: ext})
		if err != nil {
			return nil, fmt.Errorf("mongostore: identity check: %w", err)
		}
		if n > 0 {
			return nil, credential.ErrDuplicateExternalID
		}
	}

	now := s.now()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	result, err := s.coll.InsertOne(ctx, doc)
	if err != nil {
		return nil, classifyWrite(err)
	}
	oid, ok := result.InsertedID.(bson.ObjectID)
	if !ok {
		return nil, errors.New("mongostore: failed to convert inserted ID to ObjectID")
	}
	doc.ID = oid
	return doc.record(), nil
}

func classifyWrite(err error) error {
	if !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("mongostore: write: %w", err)
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "googleId"), strings.Contains(msg, "githubId"):
		return credential.ErrDuplicateExternalID
	case strings.Contains(msg, "username"):
		return credential.ErrDuplicateUsername
	case strings.Contains(msg, "email"):
		return credential.ErrDuplicateEmail
	}
	return fmt.Errorf("mongostore: write: %w", err)
}

func (s *Store) findOne(ctx context.Context, filter any) (*credential.Record, error) {
	var doc credentialDoc
	err := s.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, credential.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: find: %w", err)
	}
	return doc.record(), nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*credential.Record, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, credential.ErrNotFound
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*credential.Record, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

func (s *Store) FindByUsername(ctx context.Context, username string) (*credential.Record, error) {
	return s.findOne(ctx, bson.M{"username": username})
}

func (s *Store) FindByExternalID(ctx context.Context, provider credential.Provider, externalID string) (*credential.Record, error) {
	field, err := externalField(provider)
	if err != nil {
		return nil, credential.ErrNotFound
	}
	return s.findOne(ctx, bson.M{field: externalID})
}

// findOneAndUpdate applies update to the document matching id and the extra
// precondition. A miss on an existing document returns onMiss.
func (s *Store) findOneAndUpdate(ctx context.Context, id string, precondition bson.M, update any, onMiss error) (*credential.Record, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, credential.ErrNotFound
	}
	filter := bson.M{"_id": oid}
	for k, v := range precondition {
		filter[k] = v
	}
	var doc credentialDoc
	err = s.coll.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if onMiss == nil || len(precondition) == 0 {
			return nil, credential.ErrNotFound
		}
		n, countErr := s.coll.CountDocuments(ctx, bson.M{"_id": oid})
		if countErr != nil {
			return nil, fmt.Errorf("mongostore: find: %w", countErr)
		}
		if n == 0 {
			return nil, credential.ErrNotFound
		}
		return nil, onMiss
	}
	if err != nil {
		return nil, classifyWrite(err)
	}
	return doc.record(), nil
}

func unlockedAt(now time.Time) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"lockUntil": nil},
		bson.M{"lockUntil": bson.M{"$lte": now}},
	}}
}

func (s *Store) RegisterFailedLogin(ctx context.Context, id string, policy credential.LockoutPolicy) (*credential.Record, error) {
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "loginAttempts", Value: bson.D{{Key: "$add", Value: bson.A{
				bson.D{{Key: "$ifNull", Value: bson.A{"$loginAttempts", 0}}}, 1,
			}}}},
			{Key: "updatedAt", Value: s.now()},
		}}},
		{{Key: "$set", Value: bson.D{
			{Key: "lockUntil", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$gte", Value: bson.A{"$loginAttempts", policy.Threshold}}},
				policy.Until,
				"$lockUntil",
			}}}},
		}}},
	}
	return s.findOneAndUpdate(ctx, id, unlockedAt(policy.Now), update, credential.ErrLocked)
}

func (s *Store) RecordSuccessfulLogin(ctx context.Context, id, sessionID string, now time.Time) (*credential.Record, error) {
	update := bson.M{
		"$set":   bson.M{"loginAttempts": 0, "lastLogin": now, "updatedAt": s.now()},
		"$unset": bson.M{"lockUntil": ""},
	}
	if sessionID != "" {
		update["$addToSet"] = bson.M{"activeSessions": sessionID}
	}
	return s.findOneAndUpdate(ctx, id, unlockedAt(now), update, credential.ErrLocked)
}

func (s *Store) AddSession(ctx context.Context, id, sessionID string) error {
	_, err := s.findOneAndUpdate(ctx, id, nil, bson.M{
		"$addToSet": bson.M{"activeSessions": sessionID},
		"$set":      bson.M{"updatedAt": s.now()},
	}, nil)
	return err
}

func (s *Store) RemoveSession(ctx context.Context, id, sessionID string) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil
	}
	if _, err := s.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$pull": bson.M{"activeSessions": sessionID},
	}); err != nil {
		return fmt.Errorf("mongostore: remove session: %w", err)
	}
	return nil
}

func (s *Store) SetEmailVerificationToken(ctx context.Context, id, token string, expires time.Time) error {
	_, err := s.findOneAndUpdate(ctx, id, nil, bson.M{"$set": bson.M{
		"emailVerificationToken":   token,
		"emailVerificationExpires": expires,
		"updatedAt":                s.now(),
	}}, nil)
	return err
}

func (s *Store) ConsumeEmailVerificationToken(ctx context.Context, token string, now time.Time) (*credential.Record, error) {
	return s.consume(ctx,
		bson.M{"emailVerificationToken": token, "emailVerificationExpires": bson.M{"$gt": now}},
		bson.M{
			"$set":   bson.M{"isEmailVerified": true, "updatedAt": s.now()},
			"$unset": bson.M{"emailVerificationToken": "", "emailVerificationExpires": ""},
		}, token)
}

func (s *Store) SetPasswordResetToken(ctx context.Context, id, token string, expires time.Time) error {
	_, err := s.findOneAndUpdate(ctx, id, nil, bson.M{"$set": bson.M{
		"passwordResetToken":   token,
		"passwordResetExpires": expires,
		"updatedAt":            s.now(),
	}}, nil)
	return err
}

func (s *Store) ConsumePasswordResetToken(ctx context.Context, token, newHash string, now time.Time) (*credential.Record, error) {
	return s.consume(ctx,
		bson.M{"passwordResetToken": token, "passwordResetExpires": bson.M{"$gt": now}},
		bson.M{
			"$set":   bson.M{"password": newHash, "updatedAt": s.now()},
			"$unset": bson.M{"passwordResetToken": "", "passwordResetExpires": ""},
		}, token)
}

func (s *Store) consume(ctx context.Context, filter, update bson.M, token string) (*credential.Record, error) {
	if token == "" {
		return nil, credential.ErrNotFound
	}
	var doc credentialDoc
	err := s.coll.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, credential.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: consume token: %w", err)
	}
	return doc.record(), nil
}

func (s *Store) SetPendingTwoFactorSecret(ctx context.Context, id, secret string) error {
	_, err := s.findOneAndUpdate(ctx, id,
		bson.M{"twoFactorEnabled": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{"twoFactorSecret": secret, "updatedAt": s.now()}},
		credential.ErrTwoFactorEnabled)
	return err
}

func (s *Store) EnableTwoFactor(ctx context.Context, id, secret string) error {
	if secret == "" {
		if _, err := s.FindByID(ctx, id); err != nil {
			return err
		}
		return credential.ErrConflict
	}
	_, err := s.findOneAndUpdate(ctx, id,
		bson.M{"twoFactorEnabled": bson.M{"$ne": true}, "twoFactorSecret": secret},
		bson.M{"$set": bson.M{"twoFactorEnabled": true, "updatedAt": s.now()}},
		credential.ErrConflict)
	return err
}

func (s *Store) DisableTwoFactor(ctx context.Context, id string) error {
	_, err := s.findOneAndUpdate(ctx, id, nil, bson.M{
		"$set":   bson.M{"twoFactorEnabled": false, "updatedAt": s.now()},
		"$unset": bson.M{"twoFactorSecret": ""},
	}, nil)
	return err
}

func (s *Store) LinkExternalIdentity(ctx context.Context, id string, provider credential.Provider, externalID string) (*credential.Record, error) {
	field, err := externalField(provider)
	if err != nil {
		return nil, err
	}
	owner, err := s.findOne(ctx, bson.M{field: externalID})
	switch {
	case err == nil && owner.ID != id:
		return nil, credential.ErrDuplicateExternalID
	case err != nil && !errors.Is(err, credential.ErrNotFound):
		return nil, err
	}
	return s.findOneAndUpdate(ctx, id, nil, bson.M{"$set": bson.M{
		field:             externalID,
		"provider":        string(provider),
		"isEmailVerified": true,
		"updatedAt":       s.now(),
	}}, nil)
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, oldHash, newHash string) error {
	_, err := s.findOneAndUpdate(ctx, id,
		bson.M{"password": oldHash},
		bson.M{"$set": bson.M{"password": newHash, "updatedAt": s.now()}},
		credential.ErrConflict)
	return err
}

func (s *Store) UpdateRole(ctx context.Context, id string, role credential.Role) error {
	_, err := s.findOneAndUpdate(ctx, id, nil, bson.M{"$set": bson.M{"role": string(role), "updatedAt": s.now()}}, nil)
	return err
}

func (s *Store) SetPermissions(ctx context.Context, id string, permissions []string) error {
	_, err := s.findOneAndUpdate(ctx, id, nil, bson.M{"$set": bson.M{"permissions": nonNil(permissions), "updatedAt": s.now()}}, nil)
	return err
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
