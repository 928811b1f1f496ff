package sqlstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"zako_server/models"
	"zako_server/store"
)

func openSQLite(t testing.TB) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "zako.db")
	s, err := Open(context.Background(), Options{Driver: DriverSQLite, DSN: path})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newParticipant(token, clientID string) *models.Participant {
	return &models.Participant{
		SessionToken:  token,
		ClientID:      clientID,
		RemoteAddress: "203.0.113.7",
		UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64)",
		DetectedOS:    "Windows",
		GeoLocation:   models.UnknownLocation,
		ISP:           models.UnknownISP,
	}
}

func mustCreate(t testing.TB, s *Store, token, clientID string) *models.Participant {
	t.Helper()
	p := newParticipant(token, clientID)
	require.NoError(t, s.CreateParticipant(context.Background(), p))
	return p
}

func TestCreateAndLookup(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	p := mustCreate(t, s, "tok-1", "client-1")
	assert.NotZero(t, p.ID)
	assert.Equal(t, models.DefaultDisplayName, p.DisplayName)

	byClient, err := s.ParticipantByClientID(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, byClient.ID)
	assert.Equal(t, "tok-1", byClient.SessionToken)
	assert.Equal(t, int64(0), byClient.LikeCount)
	assert.Equal(t, p.CreatedAt.UnixMilli(), byClient.CreatedAt.UnixMilli())

	byToken, err := s.ParticipantBySessionToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, byToken.ID)

	_, err = s.ParticipantByClientID(ctx, "missing")
	assert.True(t, store.IsNotFound(err))
	_, err = s.ParticipantByID(ctx, 9999)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateWithoutClientID(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	mustCreate(t, s, "tok-a", "")
	mustCreate(t, s, "tok-b", "")

	p, err := s.ParticipantBySessionToken(ctx, "tok-a")
	require.NoError(t, err)
	assert.False(t, p.HasClientID())

	_, err = s.ParticipantByClientID(ctx, "")
	assert.True(t, store.IsNotFound(err))
}

func TestCreateUniqueViolations(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	mustCreate(t, s, "tok-1", "client-1")

	err := s.CreateParticipant(ctx, newParticipant("tok-1", "client-2"))
	require.Error(t, err)
	assert.True(t, store.IsUniqueViolation(err))
	assert.Equal(t, store.ConstraintSessionToken, store.ConstraintOf(err))

	err = s.CreateParticipant(ctx, newParticipant("tok-2", "client-1"))
	require.Error(t, err)
	assert.True(t, store.IsUniqueViolation(err))
	assert.Equal(t, store.ConstraintClientID, store.ConstraintOf(err))

	n, err := s.CountParticipants(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRebindSessionToken(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	p := mustCreate(t, s, "old", "client-1")
	mustCreate(t, s, "taken", "client-2")

	require.NoError(t, s.RebindSessionToken(ctx, p.ID, "new"))
	got, err := s.ParticipantBySessionToken(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	err = s.RebindSessionToken(ctx, p.ID, "taken")
	assert.True(t, store.IsUniqueViolation(err))

	err = s.RebindSessionToken(ctx, 4242, "whatever")
	assert.True(t, store.IsNotFound(err))
}

func TestAddLike(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	target := mustCreate(t, s, "tok-t", "client-t")
	mustCreate(t, s, "tok-l", "client-l")

	count, err := s.AddLike(ctx, "client-l", target.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = s.AddLike(ctx, "client-l", target.ID)
	require.Error(t, err)
	assert.True(t, store.IsUniqueViolation(err))
	assert.Equal(t, store.ConstraintLikePair, store.ConstraintOf(err))

	_, err = s.AddLike(ctx, "client-l", 12345)
	assert.True(t, store.IsNotFound(err))

	ids, err := s.LikedParticipantIDs(ctx, "client-l")
	require.NoError(t, err)
	assert.Equal(t, []int64{target.ID}, ids)

	got, err := s.ParticipantByID(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.LikeCount)
}

func TestAddLikeRequiresLiker(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	target := mustCreate(t, s, "tok-t", "client-t")
	mustCreate(t, s, "tok-a", "client-a")

	_, err := s.AddLike(ctx, "client-ghost", target.ID)
	require.Error(t, err)
	assert.True(t, store.IsNotFound(err))
	assert.Equal(t, store.ConstraintLiker, store.ConstraintOf(err))

	// a like arriving after its liker was deleted leaves nothing behind
	_, err = s.DeleteParticipantByClientID(ctx, "client-a")
	require.NoError(t, err)
	_, err = s.AddLike(ctx, "client-a", target.ID)
	assert.Equal(t, store.ConstraintLiker, store.ConstraintOf(err))

	ids, err := s.LikedParticipantIDs(ctx, "client-a")
	require.NoError(t, err)
	assert.Empty(t, ids)
	got, err := s.ParticipantByID(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.LikeCount)

	// the same client id registers again and likes normally
	mustCreate(t, s, "tok-a2", "client-a")
	count, err := s.AddLike(ctx, "client-a", target.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

// Likes racing the deletion of their liker either land before the delete
// (and are removed by it) or fail; no edge survives its liker.
func TestLikesRacingLikerDeletion(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	const targets = 12
	ids := make([]int64, targets)
	for i := range ids {
		ids[i] = mustCreate(t, s, fmt.Sprintf("tok-t%d", i), fmt.Sprintf("client-t%d", i)).ID
	}
	mustCreate(t, s, "tok-l", "client-l")

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := s.AddLike(ctx, "client-l", id)
			if err != nil && store.ConstraintOf(err) != store.ConstraintLiker {
				t.Errorf("like %d: %v", id, err)
			}
		}(id)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := s.DeleteParticipantByClientID(ctx, "client-l")
		assert.NoError(t, err)
	}()
	wg.Wait()

	liked, err := s.LikedParticipantIDs(ctx, "client-l")
	require.NoError(t, err)
	assert.Empty(t, liked)
	mismatches, err := s.LikeCountMismatches(ctx)
	require.NoError(t, err)
	assert.Empty(t, mismatches)
}

func TestConcurrentLikesFromOneClient(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	target := mustCreate(t, s, "tok-t", "client-t")
	mustCreate(t, s, "tok-l", "client-l")

	const workers = 16
	var ok, dup atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AddLike(ctx, "client-l", target.ID)
			switch {
			case err == nil:
				ok.Add(1)
			case store.IsUniqueViolation(err):
				dup.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), ok.Load())
	assert.Equal(t, int64(workers-1), dup.Load())
	got, err := s.ParticipantByID(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.LikeCount)
}

func TestConcurrentLikesFromManyClients(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	target := mustCreate(t, s, "tok-t", "client-t")

	const workers = 20
	for i := 0; i < workers; i++ {
		mustCreate(t, s, fmt.Sprintf("tok-%d", i), fmt.Sprintf("client-%d", i))
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.AddLike(ctx, fmt.Sprintf("client-%d", i), target.ID)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := s.ParticipantByID(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(workers), got.LikeCount)
	edges, err := s.LikeEdgesTo(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(workers), edges)
}

func TestDeleteParticipantCascades(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	victim := mustCreate(t, s, "tok-v", "client-v")
	a := mustCreate(t, s, "tok-a", "client-a")
	b := mustCreate(t, s, "tok-b", "client-b")
	c := mustCreate(t, s, "tok-c", "client-c")

	for _, id := range []int64{a.ID, b.ID, c.ID} {
		_, err := s.AddLike(ctx, "client-v", id)
		require.NoError(t, err)
	}
	for _, liker := range []string{"client-a", "client-b"} {
		_, err := s.AddLike(ctx, liker, victim.ID)
		require.NoError(t, err)
	}
	_, err := s.AddLike(ctx, "client-a", b.ID)
	require.NoError(t, err)

	res, err := s.DeleteParticipantByClientID(ctx, "client-v")
	require.NoError(t, err)
	assert.Equal(t, victim.ID, res.ParticipantID)
	assert.Equal(t, int64(3), res.OutgoingEdges)
	assert.Equal(t, int64(2), res.IncomingEdges)

	for id, want := range map[int64]int64{a.ID: 0, b.ID: 1, c.ID: 0} {
		p, err := s.ParticipantByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, p.LikeCount, "participant %d", id)
	}

	_, err = s.ParticipantByClientID(ctx, "client-v")
	assert.True(t, store.IsNotFound(err))
	ids, err := s.LikedParticipantIDs(ctx, "client-v")
	require.NoError(t, err)
	assert.Empty(t, ids)

	mismatches, err := s.LikeCountMismatches(ctx)
	require.NoError(t, err)
	assert.Empty(t, mismatches)

	_, err = s.DeleteParticipantByClientID(ctx, "client-v")
	assert.True(t, store.IsNotFound(err))

	// the client identifier and session token are free again
	mustCreate(t, s, "tok-v", "client-v")
}

func TestUpdateProfileFields(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	p := mustCreate(t, s, "tok", "client")

	require.NoError(t, s.UpdateDisplayName(ctx, p.ID, "小明"))
	require.NoError(t, s.UpdateComment(ctx, p.ID, "你好"))
	got, err := s.ParticipantByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "小明", got.DisplayName)
	assert.Equal(t, "你好", got.Comment)

	require.NoError(t, s.UpdateComment(ctx, p.ID, ""))
	got, err = s.ParticipantByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Comment)

	assert.True(t, store.IsNotFound(s.UpdateDisplayName(ctx, 777, "x")))
}

func TestListParticipants(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	var ids []int64
	for i := 0; i < 7; i++ {
		ids = append(ids, mustCreate(t, s, fmt.Sprintf("tok-%d", i), fmt.Sprintf("client-%d", i)).ID)
	}

	recent, err := s.ListParticipants(ctx, models.RecentListingSize)
	require.NoError(t, err)
	require.Len(t, recent, models.RecentListingSize)
	assert.Equal(t, ids[6], recent[0].ID)

	all, err := s.ListParticipants(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 7)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].CreatedAt.After(all[i-1].CreatedAt))
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zako.db")
	ctx := context.Background()
	s, err := Open(ctx, Options{Driver: DriverSQLite, DSN: path})
	require.NoError(t, err)
	mustCreate(t, s, "tok", "client")
	require.NoError(t, s.Close())

	s, err = Open(ctx, Options{Driver: DriverSQLite, DSN: path})
	require.NoError(t, err)
	defer s.Close()
	n, err := s.CountParticipants(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "oracle", DSN: "x"})
	assert.Error(t, err)
}

func TestRebindDollar(t *testing.T) {
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", rebindDollar("SELECT * FROM t WHERE a = ? AND b = ?"))
	assert.Equal(t, "SELECT 1", rebindDollar("SELECT 1"))
}

func TestConstraintFromText(t *testing.T) {
	cases := map[string]string{
		"UNIQUE constraint failed: participants.session_token":                                   store.ConstraintSessionToken,
		"UNIQUE constraint failed: participants.client_id":                                       store.ConstraintClientID,
		"UNIQUE constraint failed: like_edges.liker_client_id, like_edges.liked_participant_id": store.ConstraintLikePair,
		"uq_like_edges_pair":            store.ConstraintLikePair,
		"uq_participants_client_id":     store.ConstraintClientID,
		"uq_participants_session_token": store.ConstraintSessionToken,
		"something else":                "",
	}
	for in, want := range cases {
		assert.Equal(t, want, constraintFromText(in), in)
	}
}

// Random sequences of likes and deletions must keep every like count equal to its edge count.
func TestLikeCountsMatchEdges(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	run := 0

	rapid.Check(t, func(rt *rapid.T) {
		run++
		clients := make([]string, 4)
		for i := range clients {
			clients[i] = fmt.Sprintf("r%d-client-%d", run, i)
			p := newParticipant(fmt.Sprintf("r%d-tok-%d", run, i), clients[i])
			if err := s.CreateParticipant(ctx, p); err != nil {
				rt.Fatalf("create: %v", err)
			}
		}

		steps := rapid.IntRange(1, 30).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			liker := clients[rapid.IntRange(0, len(clients)-1).Draw(rt, "liker")]
			if rapid.IntRange(0, 9).Draw(rt, "op") == 0 {
				_, err := s.DeleteParticipantByClientID(ctx, liker)
				if err != nil && !store.IsNotFound(err) {
					rt.Fatalf("delete: %v", err)
				}
				continue
			}
			target, err := s.ParticipantByClientID(ctx, clients[rapid.IntRange(0, len(clients)-1).Draw(rt, "target")])
			if store.IsNotFound(err) {
				continue
			}
			if err != nil {
				rt.Fatalf("lookup: %v", err)
			}
			if _, err := s.AddLike(ctx, liker, target.ID); err != nil && !store.IsUniqueViolation(err) && !store.IsNotFound(err) {
				rt.Fatalf("like: %v", err)
			}
		}

		mismatches, err := s.LikeCountMismatches(ctx)
		if err != nil {
			rt.Fatalf("mismatches: %v", err)
		}
		if len(mismatches) != 0 {
			rt.Fatalf("like counts drifted: %+v", mismatches)
		}
	})
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("ZAKO_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ZAKO_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, Options{Driver: DriverPostgres, DSN: dsn})
	require.NoError(t, err)
	defer s.Close()

	suffix := fmt.Sprintf("%p", t)
	target := mustCreate(t, s, "pg-tok-t-"+suffix, "pg-client-t-"+suffix)
	mustCreate(t, s, "pg-tok-l-"+suffix, "pg-client-l-"+suffix)

	err = s.CreateParticipant(ctx, newParticipant("pg-tok-t-"+suffix, "other-"+suffix))
	assert.Equal(t, store.ConstraintSessionToken, store.ConstraintOf(err))

	count, err := s.AddLike(ctx, "pg-client-l-"+suffix, target.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	_, err = s.AddLike(ctx, "pg-client-l-"+suffix, target.ID)
	assert.Equal(t, store.ConstraintLikePair, store.ConstraintOf(err))

	res, err := s.DeleteParticipantByClientID(ctx, "pg-client-t-"+suffix)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.IncomingEdges)
	_, err = s.DeleteParticipantByClientID(ctx, "pg-client-l-"+suffix)
	require.NoError(t, err)
}
