package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	id "profileclaim/pkg/domain"
)

func TestAccessors(t *testing.T) {
	ctx := context.Background()

	t.Run("zero values when unset", func(t *testing.T) {
		assert.True(t, UserID(ctx).IsNil())
		assert.Empty(t, Role(ctx))
		assert.Empty(t, RequestID(ctx))
		assert.Empty(t, ClientIP(ctx))
		assert.Empty(t, UserAgent(ctx))
		assert.WithinDuration(t, time.Now(), Now(ctx), time.Second)
	})

	t.Run("values round-trip", func(t *testing.T) {
		userID := id.UserID(uuid.New())
		fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		c := WithUserID(ctx, userID)
		c = WithRole(c, "admin")
		c = WithRequestID(c, "req-1")
		c = WithClientMetadata(c, "10.0.0.1", "curl/8.0")
		c = WithTime(c, fixed)

		assert.Equal(t, userID, UserID(c))
		assert.Equal(t, "admin", Role(c))
		assert.Equal(t, "req-1", RequestID(c))
		assert.Equal(t, "10.0.0.1", ClientIP(c))
		assert.Equal(t, "curl/8.0", UserAgent(c))
		assert.Equal(t, fixed, Now(c))
	})
}
