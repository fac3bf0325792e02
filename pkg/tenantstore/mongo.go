package tenantstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/tenantgate/pkg/tenant"
)

// DefaultMongoCollection is the collection tenants are stored in.
const DefaultMongoCollection = "tenants"

// Mongo is a tenant store backed by a MongoDB collection.
type Mongo struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewMongo creates a store over the tenants collection of db.
func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{coll: db.Collection(DefaultMongoCollection), now: time.Now}
}

// EnsureIndexes creates the domain indexes. A unique multikey index makes every
// custom domain unique across documents; tenants without custom domains are excluded
// from it, otherwise they would all collide on the missing key.
func (s *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "primary_domain", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("primary_domain_unique"),
		},
		{
			Keys: bson.D{{Key: "custom_domains", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("custom_domains_unique").
				SetPartialFilterExpression(bson.D{{Key: "custom_domains.0", Value: bson.D{{Key: "$exists", Value: true}}}}),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("status_created_at"),
		},
	})
	if err != nil {
		return fmt.Errorf("ensure tenant indexes: %w", err)
	}
	return nil
}

// FindByDomain implements tenant.Store.
func (s *Mongo) FindByDomain(ctx context.Context, domain string) (*tenant.Tenant, error) {
	var t tenant.Tenant
	err := s.coll.FindOne(ctx, domainFilter(domain)).Decode(&t)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, fmt.Errorf("find tenant by domain %s: %w", domain, err)
	}
	return &t, nil
}

// ListServable implements tenant.Lister.
func (s *Mongo) ListServable(ctx context.Context) ([]*tenant.Tenant, error) {
	cursor, err := s.coll.Find(ctx,
		bson.D{{Key: "status", Value: bson.D{{Key: "$in", Value: tenant.ServableStatuses()}}}},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("list servable tenants: %w", err)
	}

	var tenants []*tenant.Tenant
	if err := cursor.All(ctx, &tenants); err != nil {
		return nil, fmt.Errorf("decode servable tenants: %w", err)
	}
	return tenants, nil
}

// Add inserts a tenant. The unique indexes guard each field on its own; the
// pre-check covers a domain used as primary by one tenant and custom by another.
func (s *Mongo) Add(ctx context.Context, t *tenant.Tenant) (*tenant.Tenant, error) {
	c, err := prepare(t, s.now())
	if err != nil {
		return nil, err
	}

	domains := c.Domains()
	n, err := s.coll.CountDocuments(ctx, bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "primary_domain", Value: bson.D{{Key: "$in", Value: domains}}}},
		bson.D{{Key: "custom_domains", Value: bson.D{{Key: "$in", Value: domains}}}},
	}}}, options.Count().SetLimit(1))
	if err != nil {
		return nil, fmt.Errorf("add tenant %s: %w", c.PrimaryDomain, err)
	}
	if n > 0 {
		return nil, fmt.Errorf("add tenant %s: %w", c.PrimaryDomain, ErrDomainTaken)
	}

	if _, err := s.coll.InsertOne(ctx, c); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("add tenant %s: %w", c.PrimaryDomain, ErrDomainTaken)
		}
		return nil, fmt.Errorf("add tenant %s: %w", c.PrimaryDomain, err)
	}
	return c, nil
}

func domainFilter(domain string) bson.D {
	return bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "primary_domain", Value: domain}},
		bson.D{{Key: "custom_domains", Value: domain}},
	}}}
}
