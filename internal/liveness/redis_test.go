// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package liveness

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/holomush/gatekeeper/internal/admission"
	"github.com/holomush/gatekeeper/pkg/errutil"
)

type RedisOracleSuite struct {
	suite.Suite
	mini   *miniredis.Miniredis
	oracle *RedisOracle
	ctx    context.Context
}

func TestRedisOracleSuite(t *testing.T) {
	suite.Run(t, new(RedisOracleSuite))
}

func (s *RedisOracleSuite) SetupTest() {
	s.mini = miniredis.RunT(s.T())
	client := redis.NewClient(&redis.Options{Addr: s.mini.Addr()})
	s.oracle = NewRedisOracleWithClient(client, "")
	s.ctx = context.Background()
}

func (s *RedisOracleSuite) TearDownTest() {
	_ = s.oracle.Close()
}

func (s *RedisOracleSuite) TestExistsForHostWrittenKey() {
	s.Require().NoError(s.mini.Set(DefaultRedisPrefix+"42", "1"))

	ok, err := s.oracle.Exists(s.ctx, "42")
	s.Require().NoError(err)
	s.True(ok)
}

func (s *RedisOracleSuite) TestMissingKeyIsGone() {
	ok, err := s.oracle.Exists(s.ctx, "nope")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *RedisOracleSuite) TestMarkLiveExpires() {
	s.Require().NoError(s.oracle.MarkLive(s.ctx, "7", time.Minute))

	ok, err := s.oracle.Exists(s.ctx, "7")
	s.Require().NoError(err)
	s.True(ok)

	s.mini.FastForward(2 * time.Minute)

	ok, err = s.oracle.Exists(s.ctx, "7")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *RedisOracleSuite) TestMarkGone() {
	s.Require().NoError(s.oracle.MarkLive(s.ctx, "7", 0))
	s.Require().NoError(s.oracle.MarkGone(s.ctx, "7"))

	ok, err := s.oracle.Exists(s.ctx, admission.SessionID("7"))
	s.Require().NoError(err)
	s.False(ok)
}

func (s *RedisOracleSuite) TestServerDownIsError() {
	s.mini.Close()

	_, err := s.oracle.Exists(s.ctx, "42")
	errutil.AssertErrorCode(s.T(), err, "LIVENESS_CHECK_FAILED")
}

func TestNewRedisOracle_BadURL(t *testing.T) {
	_, err := NewRedisOracle(context.Background(), "not a url", "")
	errutil.AssertErrorCode(t, err, "LIVENESS_CONFIG_INVALID")
}

func TestNewRedisOracle_Connects(t *testing.T) {
	mini := miniredis.RunT(t)

	oracle, err := NewRedisOracle(context.Background(), "redis://"+mini.Addr(), "custom:")
	if err != nil {
		t.Fatal(err)
	}
	defer oracle.Close()

	if err := mini.Set("custom:9", "1"); err != nil {
		t.Fatal(err)
	}
	ok, err := oracle.Exists(context.Background(), "9")
	if err != nil || !ok {
		t.Fatalf("Exists() = %v, %v; want true, nil", ok, err)
	}
}
