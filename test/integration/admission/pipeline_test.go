// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package admission_test

import (
	"io"
	"log/slog"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/gatekeeper/internal/admission"
	"github.com/holomush/gatekeeper/internal/bridge"
	"github.com/holomush/gatekeeper/internal/locale"
)

var _ = Describe("Admission pipeline against PostgreSQL", func() {
	var (
		identities  *bridge.IdentityCache
		disconnects *bridge.DisconnectQueue
		promoter    *admission.Promoter
	)

	newPromoter := func(relaxed bool) *admission.Promoter {
		catalog, err := locale.Load("en")
		Expect(err).NotTo(HaveOccurred())
		p, err := admission.NewPromoter(admission.Config{
			State:             admission.NewState(),
			Database:          repo,
			Players:           repo,
			Identities:        identities,
			Disconnector:      disconnects,
			Messages:          catalog,
			Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
			RelaxedDuplicates: relaxed,
		})
		Expect(err).NotTo(HaveOccurred())
		return p
	}

	connect := func(id admission.SessionID, license, name string) (*admission.PlayerRecord, error) {
		identities.Put(id, bridge.Identity{
			License:     license,
			Identifiers: []string{"steam:110000112345678", "discord:4242"},
			Tokens:      []string{"3:abc", "4:def"},
			Name:        name,
		})
		return promoter.Connecting(suiteCtx, id)
	}

	BeforeEach(func() {
		cleanTables()
		identities = bridge.NewIdentityCache()
		disconnects = bridge.NewDisconnectQueue()
		promoter = newPromoter(false)
	})

	It("creates an account on first connect and reuses it afterwards", func() {
		record, err := connect("c1", "license:abc123", "alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(record.UserID).To(Equal(admission.UserID(1)))
		Expect(record.Identifiers).To(HaveKeyWithValue("steam", "110000112345678"))

		var license, steam string
		Expect(pool.QueryRow(suiteCtx,
			`SELECT license2, steam FROM users WHERE user_id = 1`).Scan(&license, &steam)).To(Succeed())
		Expect(license).To(Equal("abc123"))
		Expect(steam).To(Equal("110000112345678"))

		Expect(promoter.Dropped(suiteCtx, "c1")).To(BeTrue())

		again, err := connect("c2", "license:abc123", "alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(again.UserID).To(Equal(record.UserID))
	})

	It("records tokens for the session", func() {
		_, err := connect("c1", "license:abc123", "alice")
		Expect(err).NotTo(HaveOccurred())

		var count int
		Expect(pool.QueryRow(suiteCtx,
			`SELECT count(*) FROM user_tokens WHERE token IN ('3:abc', '4:def')`).Scan(&count)).To(Succeed())
		Expect(count).To(BeNumerically(">=", 2))
	})

	It("walks a player through join and logout bookkeeping", func() {
		_, err := connect("c1", "license:abc123", "alice")
		Expect(err).NotTo(HaveOccurred())

		handed, err := promoter.Joining(suiteCtx, "c1", "7")
		Expect(err).NotTo(HaveOccurred())
		Expect(handed).NotTo(BeNil())

		active, err := promoter.Joined(suiteCtx, "7")
		Expect(err).NotTo(HaveOccurred())
		Expect(active.Phase).To(Equal(admission.PhaseActive))
		Expect(promoter.Snapshot().Active).To(Equal(1))

		Expect(promoter.Dropped(suiteCtx, "7")).To(BeTrue())
		Expect(promoter.Snapshot().Active).To(BeZero())

		var lastPlayed, lastLogout *time.Time
		Expect(pool.QueryRow(suiteCtx,
			`SELECT last_played, last_logout FROM users WHERE user_id = $1`, int64(active.UserID)).
			Scan(&lastPlayed, &lastLogout)).To(Succeed())
		Expect(lastPlayed).NotTo(BeNil())
		Expect(lastLogout).NotTo(BeNil())
	})

	It("rejects a banned account until the ban expires", func() {
		record, err := connect("c1", "license:abc123", "alice")
		Expect(err).NotTo(HaveOccurred())
		promoter.Dropped(suiteCtx, "c1")

		_, err = pool.Exec(suiteCtx,
			`INSERT INTO bans (user_id, reason, unban_at) VALUES ($1, 'cheating', now() + interval '1 day')`,
			int64(record.UserID))
		Expect(err).NotTo(HaveOccurred())

		_, err = connect("c2", "license:abc123", "alice")
		rej, ok := admission.AsRejection(err)
		Expect(ok).To(BeTrue())
		Expect(rej.Kind).To(Equal(admission.KindBanned))
		Expect(rej.Ban.Reason).To(Equal("cheating"))
		Expect(rej.Ban.Permanent()).To(BeFalse())
		Expect(promoter.Snapshot().Connecting).To(BeZero())

		_, err = pool.Exec(suiteCtx,
			`UPDATE bans SET unban_at = now() - interval '1 minute' WHERE user_id = $1`, int64(record.UserID))
		Expect(err).NotTo(HaveOccurred())

		_, err = connect("c3", "license:abc123", "alice")
		Expect(err).NotTo(HaveOccurred())
	})

	It("does not create an account for a rejected attempt", func() {
		_, err := connect("c1", "", "nobody")
		rej, ok := admission.AsRejection(err)
		Expect(ok).To(BeTrue())
		Expect(rej.Kind).To(Equal(admission.KindNoLicense))

		var count int
		Expect(pool.QueryRow(suiteCtx, `SELECT count(*) FROM users`).Scan(&count)).To(Succeed())
		Expect(count).To(BeZero())
	})

	It("rejects a second live session for the same account", func() {
		_, err := connect("c1", "license:abc123", "alice")
		Expect(err).NotTo(HaveOccurred())
		_, err = promoter.Joined(suiteCtx, "c1")
		Expect(err).NotTo(HaveOccurred())

		_, err = connect("c2", "license:abc123", "alice")
		rej, ok := admission.AsRejection(err)
		Expect(ok).To(BeTrue())
		Expect(rej.Kind).To(Equal(admission.KindDuplicateSession))
	})

	It("falls back to the alternate account in relaxed mode", func() {
		promoter = newPromoter(true)

		first, err := connect("c1", "license:abc123", "alice")
		Expect(err).NotTo(HaveOccurred())
		_, err = promoter.Joined(suiteCtx, "c1")
		Expect(err).NotTo(HaveOccurred())

		second, err := connect("c2", "license:abc123", "alice-alt")
		Expect(err).NotTo(HaveOccurred())
		Expect(second.UserID).NotTo(Equal(first.UserID))

		var count int
		Expect(pool.QueryRow(suiteCtx,
			`SELECT count(*) FROM users WHERE license2 = 'abc123'`).Scan(&count)).To(Succeed())
		Expect(count).To(Equal(2))
	})

	It("saves everyone and disconnects them on shutdown", func() {
		for _, id := range []admission.SessionID{"1", "2"} {
			_, err := connect(id, "license:"+string(id)+"key", "p"+string(id))
			Expect(err).NotTo(HaveOccurred())
			_, err = promoter.Joined(suiteCtx, id)
			Expect(err).NotTo(HaveOccurred())
		}

		var summary admission.SaveSummary
		Eventually(promoter.Shutdown(suiteCtx, "restart")).Should(Receive(&summary))
		Expect(summary).To(Equal(admission.SaveSummary{Saved: 2}))

		instructions := disconnects.Drain()
		Expect(instructions).To(HaveLen(2))
		for _, in := range instructions {
			Expect(in.Reason).To(Equal("restart"))
		}

		_, err := connect("3", "license:late", "late")
		rej, ok := admission.AsRejection(err)
		Expect(ok).To(BeTrue())
		Expect(rej.Kind).To(Equal(admission.KindLockdownActive))
	})
})
