package store

import (
	"context"
	"time"

	"github.com/TheAlem/Torneria-Montero-Back-sub000/pkg/models"
)

// SeedDemo loads a small workshop dataset for local development: four
// workers with distinct skill profiles and a mix of open jobs.
func (s *sqliteStore) SeedDemo(ctx context.Context) error {
	var count int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM workers`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hired := func(year int) *time.Time {
		t := time.Date(year, time.March, 1, 0, 0, 0, 0, time.UTC)
		return &t
	}
	workers := []models.Worker{
		{Name: "Marco Quispe", Active: true, Role: models.RoleTurner, Skills: []string{"torneado", "roscado"}, HiredAt: hired(2015)},
		{Name: "Luis Mamani", Active: true, Role: models.RoleMiller, Skills: []string{"fresado", "torneado"}, HiredAt: hired(2019)},
		{Name: "Pedro Choque", Active: true, Role: models.RoleWelder, Skills: []string{"soldadura", "recargue"}, HiredAt: hired(2021)},
		{Name: "Jorge Flores", Active: true, Role: models.RoleAssistant, Skills: []string{"ayudante", "pulido"}, HiredAt: hired(2024)},
	}
	for _, w := range workers {
		if _, err := s.CreateWorker(ctx, w); err != nil {
			return err
		}
	}

	due := func(days int) *time.Time {
		t := time.Now().UTC().Add(time.Duration(days) * 24 * time.Hour)
		return &t
	}
	jobs := []models.Job{
		{Description: "Eje de acero 1045 con roscado M12, tolerancias ajustadas", Priority: models.PriorityHigh, ClientID: 1, Price: 480, DueDate: due(2)},
		{Description: "Buje de bronce fosforado diámetro 45mm", Priority: models.PriorityMedium, ClientID: 2, Price: 220, DueDate: due(5)},
		{Description: "Recargue y rellenado de pieza fundida, soldadura", Priority: models.PriorityMedium, ClientID: 1, Price: 350, DueDate: due(4)},
		{Description: "Fresado de chaveteros, múltiples piezas x6", Priority: models.PriorityLow, ClientID: 3, Price: 600, DueDate: due(10)},
		{Description: "Pulido y alineado de eje corto", Priority: models.PriorityLow, ClientID: 2, Price: 90, DueDate: nil},
	}
	for _, j := range jobs {
		if _, err := s.CreateJob(ctx, j); err != nil {
			return err
		}
	}
	return nil
}
