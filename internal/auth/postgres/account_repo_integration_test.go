// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MySurvey Contributors

//go:build integration

package postgres_test

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"golang.org/x/crypto/bcrypt"

	"github.com/mysurvey/mysurvey/internal/auth"
	"github.com/mysurvey/mysurvey/internal/auth/postgres"
)

var _ = Describe("AccountRepository", func() {
	var (
		ctx  context.Context
		repo *postgres.AccountRepository
	)

	newAccount := func(email string) *auth.Account {
		reg, err := auth.NewRegistration(email, "Secure123!", "A", "B")
		Expect(err).NotTo(HaveOccurred())
		a, err := auth.NewAccount(reg, "$2a$04$placeholderhash", time.Now().Truncate(time.Microsecond))
		Expect(err).NotTo(HaveOccurred())
		return a
	}

	BeforeEach(func() {
		ctx = context.Background()
		repo = postgres.NewAccountRepository(testPool)
		_, err := testPool.Exec(ctx, `DELETE FROM users`)
		Expect(err).NotTo(HaveOccurred())
	})

	It("round-trips an account", func() {
		a := newAccount("round@x.com")
		Expect(repo.Create(ctx, a)).To(Succeed())

		got, err := repo.FindByID(ctx, a.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Email).To(Equal("round@x.com"))
		Expect(got.Role).To(Equal(auth.RoleCreator))
		Expect(got.Active).To(BeTrue())
		Expect(got.CreatedAt).To(BeTemporally("==", a.CreatedAt))

		byEmail, err := repo.FindByEmail(ctx, "ROUND@x.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(byEmail.ID).To(Equal(a.ID))
	})

	It("rejects a second account with the same email in any case", func() {
		Expect(repo.Create(ctx, newAccount("dup@x.com"))).To(Succeed())

		dup := newAccount("dup@x.com")
		dup.Email = "DUP@x.com"
		err := repo.Create(ctx, dup)
		Expect(err).To(MatchError(auth.ErrDuplicateEmail))
	})

	It("reports missing accounts as not found", func() {
		_, err := repo.FindByID(ctx, ulid.Make())
		Expect(err).To(MatchError(auth.ErrNotFound))
		Expect(repo.SetActive(ctx, ulid.Make(), false)).To(MatchError(auth.ErrNotFound))
	})

	It("tracks lockout state", func() {
		a := newAccount("lock@x.com")
		Expect(repo.Create(ctx, a)).To(Succeed())

		until := time.Now().Add(15 * time.Minute).Truncate(time.Microsecond)
		Expect(repo.UpdateFailedAttempts(ctx, a.ID, 5, &until)).To(Succeed())
		got, err := repo.FindByID(ctx, a.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.FailedAttempts).To(Equal(5))
		Expect(*got.LockedUntil).To(BeTemporally("==", until))

		Expect(repo.ResetFailedAttempts(ctx, a.ID)).To(Succeed())
		got, err = repo.FindByID(ctx, a.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.FailedAttempts).To(BeZero())
		Expect(got.LockedUntil).To(BeNil())
	})

	It("consumes reset tokens once", func() {
		a := newAccount("reset@x.com")
		Expect(repo.Create(ctx, a)).To(Succeed())
		Expect(repo.SetResetToken(ctx, a.ID, "digest", time.Now().Add(time.Hour))).To(Succeed())

		got, err := repo.FindByResetToken(ctx, "digest")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(a.ID))

		Expect(repo.CompleteReset(ctx, a.ID, "digest", "newhash", time.Now())).To(Succeed())
		Expect(repo.CompleteReset(ctx, a.ID, "digest", "otherhash", time.Now())).To(MatchError(auth.ErrNotFound))

		_, err = repo.FindByResetToken(ctx, "digest")
		Expect(err).To(MatchError(auth.ErrNotFound))
	})

	It("does not let a superseded reset token consume the newer one", func() {
		a := newAccount("superseded@x.com")
		Expect(repo.Create(ctx, a)).To(Succeed())
		Expect(repo.SetResetToken(ctx, a.ID, "old-digest", time.Now().Add(time.Hour))).To(Succeed())
		Expect(repo.SetResetToken(ctx, a.ID, "new-digest", time.Now().Add(time.Hour))).To(Succeed())

		Expect(repo.CompleteReset(ctx, a.ID, "old-digest", "hash", time.Now())).To(MatchError(auth.ErrNotFound))

		got, err := repo.FindByResetToken(ctx, "new-digest")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(a.ID))
	})

	It("rejects an expired reset token at completion", func() {
		a := newAccount("late@x.com")
		Expect(repo.Create(ctx, a)).To(Succeed())
		expires := time.Now().Add(time.Minute)
		Expect(repo.SetResetToken(ctx, a.ID, "digest", expires)).To(Succeed())

		Expect(repo.CompleteReset(ctx, a.ID, "digest", "hash", expires.Add(time.Second))).To(MatchError(auth.ErrNotFound))
	})

	It("keeps a pending reset token when rehashing", func() {
		a := newAccount("rehash@x.com")
		Expect(repo.Create(ctx, a)).To(Succeed())
		Expect(repo.SetResetToken(ctx, a.ID, "digest", time.Now().Add(time.Hour))).To(Succeed())

		Expect(repo.RehashPassword(ctx, a.ID, "$2a$04$rehashed")).To(Succeed())

		got, err := repo.FindByResetToken(ctx, "digest")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.PasswordHash).To(Equal("$2a$04$rehashed"))
	})

	It("backs the auth service end to end", func() {
		clock := time.Now()
		issuer, err := auth.NewTokenIssuer(auth.TokenConfig{
			AccessSecret:  []byte("integration-access-secret"),
			RefreshSecret: []byte("integration-refresh-secret"),
		})
		Expect(err).NotTo(HaveOccurred())
		svc, err := auth.NewService(repo, auth.NewBcryptHasher(bcrypt.MinCost), issuer,
			auth.WithClock(func() time.Time { return clock }))
		Expect(err).NotTo(HaveOccurred())

		reg, err := auth.NewRegistration("e2e@x.com", "Secure123!", "E", "E")
		Expect(err).NotTo(HaveOccurred())
		_, err = svc.Register(ctx, reg)
		Expect(err).NotTo(HaveOccurred())

		for range auth.DefaultLockoutThreshold {
			_, err = svc.Login(ctx, "e2e@x.com", "Wrong123!")
			Expect(auth.CodeOf(err)).To(Equal(auth.CodeInvalidCredentials))
		}
		_, err = svc.Login(ctx, "e2e@x.com", "Secure123!")
		Expect(auth.CodeOf(err)).To(Equal(auth.CodeAccountLocked))

		clock = clock.Add(auth.DefaultLockoutDuration + time.Second)
		res, err := svc.Login(ctx, "e2e@x.com", "Secure123!")
		Expect(err).NotTo(HaveOccurred())
		Expect(res.AccessToken).NotTo(BeEmpty())
	})
})
