package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/ehr/recordstore/internal/config"
	"github.com/ehr/recordstore/internal/domain/encounter"
	"github.com/ehr/recordstore/internal/domain/meeting"
	"github.com/ehr/recordstore/internal/domain/notification"
	"github.com/ehr/recordstore/internal/domain/patient"
	"github.com/ehr/recordstore/internal/domain/user"
	"github.com/ehr/recordstore/internal/platform/db"
	"github.com/ehr/recordstore/internal/platform/phi"
	"github.com/ehr/recordstore/internal/platform/repository"
	"github.com/ehr/recordstore/internal/platform/sequence"
	"github.com/ehr/recordstore/internal/platform/telemetry"
	"github.com/ehr/recordstore/internal/platform/valuetype"
)

// definitions lists every entity table the engine manages.
func definitions(ids *valuetype.IdentityNumbers) []repository.Definition {
	return []repository.Definition{
		patient.Definition(ids),
		encounter.Definition(),
		notification.Definition(),
		user.Definition(),
		meeting.Definition(),
	}
}

func detect(ctx context.Context, conn db.Conn, def repository.Definition) (*repository.Schema, error) {
	return repository.Detect(ctx, conn, def)
}

// stores holds one repository per entity, each bound to its detected table.
type stores struct {
	Patients      patient.Repository
	Encounters    encounter.Repository
	Notifications notification.Repository
	Users         user.Repository
	Meetings      meeting.Repository

	closers []io.Closer
}

func (s *stores) Close() error {
	for _, c := range s.closers {
		_ = c.Close()
	}
	return nil
}

func openStores(ctx context.Context, cfg *config.Config, conn db.Conn, logger zerolog.Logger, inst *telemetry.Instrumentation) (*stores, error) {
	st := &stores{}

	ring, err := cfg.Keyring()
	if err != nil {
		return nil, err
	}
	auditor := inst.Metrics().CountingAuditor(phi.MultiAuditor{
		phi.NewLogAuditor(logger),
		phi.NewSQLAuditor(conn),
	})
	ids, err := valuetype.NewIdentityNumbers(ring, auditor, logger)
	if err != nil {
		return nil, err
	}

	datePolicy, err := cfg.DatePolicy()
	if err != nil {
		return nil, err
	}

	var gen sequence.Generator
	switch cfg.RecordSequence {
	case "redis":
		client, err := sequence.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, client)
		gen = sequence.NewRedis(client, "recordstore:seq:")
	default:
		gen = sequence.NewPostgres(conn)
	}

	schemas := make(map[string]*repository.Schema)
	for _, def := range definitions(ids) {
		s, err := detect(ctx, conn, def)
		if err != nil {
			return nil, fmt.Errorf("detect %s: %w", def.Entity, err)
		}
		if len(s.MissingOptional) > 0 {
			logger.Warn().Str("entity", def.Entity).Strs("columns", s.MissingOptional).Msg("optional columns missing")
		}
		schemas[def.Entity] = s
	}

	opts := func(entity string) repository.Options {
		return repository.Options{
			Logger:          logger,
			Instrumentation: inst,
			DatePolicy:      datePolicy,
			Limits:          cfg.Limits(),
			Sequence:        gen,
			Registry:        phi.DefaultRegistry,
			Schema:          schemas[entity],
		}
	}

	if st.Patients, err = patient.NewRepo(conn, ids, opts(patient.Entity)); err != nil {
		return nil, err
	}
	if st.Encounters, err = encounter.NewRepo(conn, opts(encounter.Entity)); err != nil {
		return nil, err
	}
	if st.Notifications, err = notification.NewRepo(conn, opts(notification.Entity)); err != nil {
		return nil, err
	}
	if st.Users, err = user.NewRepo(conn, opts(user.Entity)); err != nil {
		return nil, err
	}
	if st.Meetings, err = meeting.NewRepo(conn, opts(meeting.Entity)); err != nil {
		return nil, err
	}
	logger.Info().Int("entities", len(schemas)).Msg("record stores ready")
	return st, nil
}
