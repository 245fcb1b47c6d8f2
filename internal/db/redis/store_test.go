package redis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/jobfed/internal/db"
)

// newMocked returns a Store over a gomock rueidis client.
func newMocked(t *testing.T) (*Store, *mock.Client) {
	t.Helper()
	c := mock.NewClient(gomock.NewController(t))
	return &Store{client: c}, c
}

// --- client.go ---

func TestNewStore_RequiresAddrs(t *testing.T) {
	if _, err := NewStore(Config{}); err == nil {
		t.Fatal("expected error for empty addrs")
	}
}

func TestPing(t *testing.T) {
	s, c := newMocked(t)
	gomock.InOrder(
		c.EXPECT().Do(gomock.Any(), mock.Match("PING")).Return(mock.Result(mock.RedisString("PONG"))),
		c.EXPECT().Do(gomock.Any(), mock.Match("PING")).Return(mock.ErrorResult(context.DeadlineExceeded)),
	)

	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("first ping: %v", err)
	}
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("second ping: expected error")
	}
}

func TestWaitForReady_ReportsLastError(t *testing.T) {
	s, c := newMocked(t)
	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.ErrorResult(errors.New("connection refused"))).
		AnyTimes()

	err := s.WaitForReady(context.Background(), 250*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("expected last ping error in %q", err)
	}
}

func TestWaitForReady_ImmediatePing(t *testing.T) {
	s, c := newMocked(t)
	c.EXPECT().Do(gomock.Any(), mock.Match("PING")).Return(mock.Result(mock.RedisString("PONG"))).Times(1)

	if err := s.WaitForReady(context.Background(), time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// --- kv.go ---

func TestGet(t *testing.T) {
	tests := []struct {
		name     string
		reply    rueidis.RedisResult
		want     string
		notFound bool
		op       string
	}{
		{"hit", mock.Result(mock.RedisBlobString("doc")), "doc", false, ""},
		{"nil reply", mock.Result(mock.RedisNil()), "", true, ""},
		{"network", mock.ErrorResult(context.DeadlineExceeded), "", false, db.OpGet},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, c := newMocked(t)
			c.EXPECT().Do(gomock.Any(), mock.Match("GET", "jobfed:cache:e:1")).Return(tt.reply)

			data, err := s.Get(context.Background(), "jobfed:cache:e:1")
			if got := errors.Is(err, db.ErrKeyNotFound); got != tt.notFound {
				t.Fatalf("ErrKeyNotFound = %v, want %v (err %v)", got, tt.notFound, err)
			}
			if tt.op != "" {
				var dbErr *db.Error
				if !errors.As(err, &dbErr) || dbErr.Op != tt.op {
					t.Fatalf("expected db.Error with op %s, got %v", tt.op, err)
				}
			}
			if string(data) != tt.want {
				t.Errorf("data = %q, want %q", data, tt.want)
			}
		})
	}
}

func TestMGet_PipelinesGets(t *testing.T) {
	s, c := newMocked(t)
	c.EXPECT().
		DoMulti(gomock.Any(), mock.Match("GET", "k1"), mock.Match("GET", "k2"), mock.Match("GET", "k3")).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisBlobString("a")),
			mock.Result(mock.RedisNil()),
			mock.Result(mock.RedisBlobString("c")),
		})

	vals, err := s.MGet(context.Background(), "k1", "k2", "k3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vals) != 3 || string(vals[0]) != "a" || vals[1] != nil || string(vals[2]) != "c" {
		t.Errorf("unexpected values: %q", vals)
	}
}

func TestMGet_Error(t *testing.T) {
	s, c := newMocked(t)
	c.EXPECT().
		DoMulti(gomock.Any(), mock.Match("GET", "k1")).
		Return([]rueidis.RedisResult{mock.ErrorResult(context.DeadlineExceeded)})

	_, err := s.MGet(context.Background(), "k1")
	var dbErr *db.Error
	if !errors.As(err, &dbErr) || dbErr.Op != db.OpMGet {
		t.Errorf("expected db.Error with op MGET, got %v", err)
	}
}

// A nil client panics if touched, so these prove no round trip happens.
func TestEmptyKeyLists(t *testing.T) {
	s := &Store{}
	if vals, err := s.MGet(context.Background()); vals != nil || err != nil {
		t.Errorf("MGet() = %v, %v", vals, err)
	}
	if err := s.Del(context.Background()); err != nil {
		t.Errorf("Del() = %v", err)
	}
}

// TestWriteCommands checks the exact command each write sends.
func TestWriteCommands(t *testing.T) {
	tests := []struct {
		name  string
		want  []string
		reply rueidis.RedisMessage
		call  func(s *Store) error
	}{
		{
			name:  "set with ttl",
			want:  []string{"SET", "jobfed:cache:e:abc", "doc", "PX", "1500"},
			reply: mock.RedisString("OK"),
			call: func(s *Store) error {
				return s.SetWithTTL(context.Background(), "jobfed:cache:e:abc", []byte("doc"), 1500*time.Millisecond)
			},
		},
		{
			name:  "set without ttl",
			want:  []string{"SET", "jobfed:cache:e:abc", "doc"},
			reply: mock.RedisString("OK"),
			call: func(s *Store) error {
				return s.SetWithTTL(context.Background(), "jobfed:cache:e:abc", []byte("doc"), 0)
			},
		},
		{
			name:  "del",
			want:  []string{"DEL", "k1", "k2"},
			reply: mock.RedisInt64(2),
			call:  func(s *Store) error { return s.Del(context.Background(), "k1", "k2") },
		},
		{
			name:  "incrby",
			want:  []string{"INCRBY", "jobfed:budget:day:2026-03-31", "5000"},
			reply: mock.RedisInt64(5000),
			call: func(s *Store) error {
				return s.IncrBy(context.Background(), "jobfed:budget:day:2026-03-31", 5000)
			},
		},
		{
			name:  "expire",
			want:  []string{"EXPIRE", "k", "300"},
			reply: mock.RedisInt64(1),
			call:  func(s *Store) error { return s.Expire(context.Background(), "k", 5*time.Minute, false) },
		},
		{
			name:  "expire nx",
			want:  []string{"EXPIRE", "k", "172800", "NX"},
			reply: mock.RedisInt64(1),
			call:  func(s *Store) error { return s.Expire(context.Background(), "k", 48*time.Hour, true) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, c := newMocked(t)
			c.EXPECT().Do(gomock.Any(), mock.Match(tt.want...)).Return(mock.Result(tt.reply))
			if err := tt.call(s); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestWriteCommands_WrapOp(t *testing.T) {
	s, c := newMocked(t)
	c.EXPECT().Do(gomock.Any(), gomock.Any()).Return(mock.ErrorResult(errors.New("READONLY"))).Times(2)

	var dbErr *db.Error
	if err := s.IncrBy(context.Background(), "k", 1); !errors.As(err, &dbErr) || dbErr.Op != db.OpIncrBy {
		t.Errorf("IncrBy: expected op INCRBY, got %v", err)
	}
	if err := s.Expire(context.Background(), "k", time.Hour, true); !errors.As(err, &dbErr) || dbErr.Op != db.OpExpire {
		t.Errorf("Expire: expected op EXPIRE, got %v", err)
	}
}

func TestScan_FollowsCursor(t *testing.T) {
	s, c := newMocked(t)
	isScan := mock.MatchFn(func(cmd []string) bool { return cmd[0] == "SCAN" })
	gomock.InOrder(
		// SCAN replies [cursor, [keys...]]; cursor 0 ends the iteration
		c.EXPECT().Do(gomock.Any(), isScan).Return(mock.Result(mock.RedisArray(
			mock.RedisString("42"),
			mock.RedisArray(mock.RedisString("jobfed:cache:r:u1:a")),
		))),
		c.EXPECT().Do(gomock.Any(), isScan).Return(mock.Result(mock.RedisArray(
			mock.RedisString("0"),
			mock.RedisArray(mock.RedisString("jobfed:cache:r:u1:b"), mock.RedisString("jobfed:cache:r:u1:c")),
		))),
	)

	keys, err := s.Scan(context.Background(), "jobfed:cache:r:u1:*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 3 || keys[0] != "jobfed:cache:r:u1:a" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestScan_Error(t *testing.T) {
	s, c := newMocked(t)
	c.EXPECT().Do(gomock.Any(), gomock.Any()).Return(mock.ErrorResult(errors.New("LOADING")))

	var dbErr *db.Error
	if _, err := s.Scan(context.Background(), "*"); !errors.As(err, &dbErr) || dbErr.Op != db.OpScan {
		t.Errorf("expected op SCAN, got %v", err)
	}
}
