package mongo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/rankfoundry/shopseo/pkg/mongo"
)

func TestIndexes_UniqueShopOnEveryCollection(t *testing.T) {
	t.Parallel()

	idx := mongo.Indexes()
	for _, coll := range []string{mongo.SubscriptionsCollection, mongo.TokenBalancesCollection, mongo.ShopsCollection} {
		models, ok := idx[coll]
		require.True(t, ok, coll)
		require.NotEmpty(t, models, coll)
		assert.Equal(t, bson.D{{Key: "shop", Value: 1}}, models[0].Keys, coll)
		require.NotNil(t, models[0].Options, coll)
	}
}
