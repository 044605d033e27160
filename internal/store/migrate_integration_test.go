// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MySurvey Contributors

//go:build integration

package store_test

import (
	"context"
	"log/slog"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mysurvey/mysurvey/internal/store"
)

var _ = Describe("Migrator", func() {
	var (
		ctx       context.Context
		container *postgres.PostgresContainer
		connStr   string
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("mysurvey_test"),
			postgres.WithUsername("mysurvey"),
			postgres.WithPassword("mysurvey"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		Expect(err).NotTo(HaveOccurred())
		connStr, err = container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = container.Terminate(ctx)
	})

	It("runs a full up/down cycle", func() {
		migrator, err := store.NewMigrator(connStr, slog.New(slog.DiscardHandler))
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = migrator.Close() }()

		st, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Version).To(BeZero())
		Expect(st.Pending).NotTo(BeEmpty())

		Expect(migrator.Up()).To(Succeed())
		st, err = migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Pending).To(BeEmpty())
		Expect(st.Dirty).To(BeFalse())

		Expect(migrator.Up()).To(Succeed(), "second Up is a no-op")

		Expect(migrator.Down()).To(Succeed())
		version, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
	})

	It("connects a pool once the database is up", func() {
		pool, err := store.NewPool(ctx, store.PoolConfig{URL: connStr, MaxConns: 2}, slog.New(slog.DiscardHandler))
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()
		Expect(pool.Ping(ctx)).To(Succeed())
	})
})
