// simulate hammers one slot with concurrent create and reschedule requests
// and checks that exactly one writer wins while the rest get a conflict.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medagenda/clinic-scheduling/internal/db"
	"github.com/medagenda/clinic-scheduling/internal/identity"
	"github.com/medagenda/clinic-scheduling/internal/scheduling"
)

type simConfig struct {
	APIBaseURL  string
	PostgresDSN string
	JWTSecret   string
	Workers     int
	Date        string
	Time        string
}

type outcomeCounts struct {
	mu        sync.Mutex
	success   int
	conflict  int
	errors    int
	latencies []time.Duration
	winners   []uuid.UUID
}

func (oc *outcomeCounts) record(status int, latency time.Duration, apptID uuid.UUID) {
	oc.mu.Lock()
	defer oc.mu.Unlock()

	oc.latencies = append(oc.latencies, latency)
	switch {
	case status == http.StatusCreated || status == http.StatusOK:
		oc.success++
		oc.winners = append(oc.winners, apptID)
	case status == http.StatusConflict:
		oc.conflict++
	default:
		oc.errors++
	}
}

func (oc *outcomeCounts) report(label string, total int) bool {
	oc.mu.Lock()
	defer oc.mu.Unlock()

	sort.Slice(oc.latencies, func(i, j int) bool { return oc.latencies[i] < oc.latencies[j] })
	var p95 time.Duration
	if n := len(oc.latencies); n > 0 {
		idx := n * 95 / 100
		if idx >= n {
			idx = n - 1
		}
		p95 = oc.latencies[idx]
	}

	fmt.Printf("%s: total=%d success=%d conflict=%d error=%d p95=%s\n",
		label, total, oc.success, oc.conflict, oc.errors, p95)

	ok := oc.success == 1 && oc.conflict == total-1 && oc.errors == 0
	if ok {
		fmt.Printf("%s: PASS (exactly one winner)\n", label)
	} else {
		fmt.Printf("%s: FAIL (expected 1 success and %d conflicts)\n", label, total-1)
	}
	return ok
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := simConfig{
		APIBaseURL:  getEnv("API_BASE_URL", "http://127.0.0.1:8080"),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		Workers:     getInt("SIM_WORKERS", 20),
		Date:        getEnv("SIM_DATE", time.Now().AddDate(0, 0, 7).Format("2006-01-02")),
		Time:        getEnv("SIM_TIME", "09:00"),
	}
	if cfg.PostgresDSN == "" || cfg.JWTSecret == "" {
		log.Fatal("POSTGRES_DSN and JWT_SECRET are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	doctorID, patientIDs, err := pickDoctorAndPatients(ctx, pool, cfg.Workers)
	if err != nil {
		log.Fatalf("pick simulation data: %v", err)
	}

	token, err := identity.SignToken(cfg.JWTSecret, scheduling.Principal{
		Subject: "simulate",
		Roles:   []scheduling.Role{scheduling.RoleAdmin},
	}, time.Hour)
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}

	createOK := runCreateContention(client, cfg, token, doctorID, patientIDs)
	rescheduleOK := runRescheduleContention(client, cfg, token, doctorID, patientIDs)

	if !createOK || !rescheduleOK {
		os.Exit(1)
	}
}

// runCreateContention fires Workers concurrent creates at the same slot.
func runCreateContention(client *http.Client, cfg simConfig, token string, doctorID uuid.UUID, patientIDs []uuid.UUID) bool {
	log.Printf("create contention: %d workers on %s %s", cfg.Workers, cfg.Date, cfg.Time)

	var oc outcomeCounts
	var wg sync.WaitGroup

	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func(patientID uuid.UUID) {
			defer wg.Done()

			body := map[string]any{
				"doctor_id":  doctorID.String(),
				"patient_id": patientID.String(),
				"date":       cfg.Date,
				"time":       cfg.Time,
			}
			status, apptID, latency := post(client, cfg.APIBaseURL+"/appointments", token, body)
			oc.record(status, latency, apptID)
		}(patientIDs[i%len(patientIDs)])
	}
	wg.Wait()

	return oc.report("create", cfg.Workers)
}

// runRescheduleContention creates two appointments at distinct times, then
// moves both concurrently to the same free destination slot.
func runRescheduleContention(client *http.Client, cfg simConfig, token string, doctorID uuid.UUID, patientIDs []uuid.UUID) bool {
	log.Println("reschedule contention: two appointments, one destination")

	times := []string{"14:00", "14:30"}
	ids := make([]uuid.UUID, 0, 2)
	for i, t := range times {
		body := map[string]any{
			"doctor_id":  doctorID.String(),
			"patient_id": patientIDs[i%len(patientIDs)].String(),
			"date":       cfg.Date,
			"time":       t,
		}
		status, apptID, _ := post(client, cfg.APIBaseURL+"/appointments", token, body)
		if status != http.StatusCreated {
			log.Printf("setup create at %s failed with status %d", t, status)
			return false
		}
		ids = append(ids, apptID)
	}

	var oc outcomeCounts
	var wg sync.WaitGroup

	for _, id := range ids {
		wg.Add(1)
		go func(apptID uuid.UUID) {
			defer wg.Done()

			body := map[string]any{
				"date": cfg.Date,
				"time": "15:00",
			}
			url := fmt.Sprintf("%s/appointments/%s/reschedule", cfg.APIBaseURL, apptID)
			status, _, latency := post(client, url, token, body)
			oc.record(status, latency, apptID)
		}(id)
	}
	wg.Wait()

	return oc.report("reschedule", len(ids))
}

func post(client *http.Client, url, token string, body map[string]any) (int, uuid.UUID, time.Duration) {
	data, _ := json.Marshal(body)

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, uuid.Nil, 0
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, uuid.Nil, latency
	}
	defer resp.Body.Close()

	var parsed struct {
		ID uuid.UUID `json:"id"`
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &parsed)

	return resp.StatusCode, parsed.ID, latency
}

func pickDoctorAndPatients(ctx context.Context, pool *pgxpool.Pool, count int) (uuid.UUID, []uuid.UUID, error) {
	var doctorID uuid.UUID
	if err := pool.QueryRow(ctx, `SELECT id FROM doctors LIMIT 1`).Scan(&doctorID); err != nil {
		return uuid.Nil, nil, fmt.Errorf("pick doctor: %w", err)
	}

	rows, err := pool.Query(ctx, `SELECT id FROM patients WHERE doctor_id = $1 LIMIT $2`, doctorID, count)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("pick patients: %w", err)
	}
	defer rows.Close()

	var patients []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return uuid.Nil, nil, err
		}
		patients = append(patients, id)
	}
	if err := rows.Err(); err != nil {
		return uuid.Nil, nil, err
	}
	if len(patients) == 0 {
		return uuid.Nil, nil, fmt.Errorf("doctor %s has no patients, run seed first", doctorID)
	}

	return doctorID, patients, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
