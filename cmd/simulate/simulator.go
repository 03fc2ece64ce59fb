package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-appointment-scheduling/internal/identity"
)

type SimConfig struct {
	APIBaseURL     string
	Duration       time.Duration
	Workers        int
	BookingRatio   float64
	ConfirmRatio   float64
	CancelRatio    float64
	ReadRatio      float64
	DoctorLimit    int
	PatientLimit   int
	RaceContenders int
}

type bookedAppointment struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	PatientID uuid.UUID
}

type DataPool struct {
	Doctors      []uuid.UUID
	Patients     []uuid.UUID
	mu           sync.RWMutex
	appointments []bookedAppointment
}

func (dp *DataPool) AddAppointment(a bookedAppointment) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, a)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (bookedAppointment, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return bookedAppointment{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	tokens  *identity.Tokens
	log     zerolog.Logger
	metrics Metrics

	tokenMu    sync.Mutex
	tokenCache map[identity.Principal]string
}

func NewSimulator(cfg SimConfig, pool *DataPool, tokens *identity.Tokens, log zerolog.Logger) *Simulator {
	return &Simulator{
		config:     cfg,
		pool:       pool,
		client:     &http.Client{Timeout: 10 * time.Second},
		tokens:     tokens,
		log:        log,
		tokenCache: make(map[identity.Principal]string),
	}
}

// token returns a bearer token for the principal, minting it once.
func (s *Simulator) token(role identity.Role, id uuid.UUID) (string, error) {
	p := identity.Principal{UserID: id, Role: role}

	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()

	if tok, ok := s.tokenCache[p]; ok {
		return tok, nil
	}
	tok, err := s.tokens.Issue(p, 2*time.Hour)
	if err != nil {
		return "", err
	}
	s.tokenCache[p] = tok
	return tok, nil
}

// do sends a JSON request as the principal and decodes a 2xx body into out.
func (s *Simulator) do(ctx context.Context, method, path string, role identity.Role, id uuid.UUID, body, out any) (int, error) {
	tok, err := s.token(role, id)
	if err != nil {
		return 0, fmt.Errorf("issue token: %w", err)
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
		return resp.StatusCode, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

type datesResponse struct {
	Dates []struct {
		Date       string `json:"date"`
		Selectable bool   `json:"selectable"`
	} `json:"dates"`
}

type slotsResponse struct {
	Slots []slotJSON `json:"slots"`
}

type slotJSON struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type appointmentJSON struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	PatientID uuid.UUID `json:"patient_id"`
	Status    string    `json:"status"`
}

var errNoSlot = errors.New("no free slot found")

// findSlot walks the doctor's candidate dates and returns a random free slot.
func (s *Simulator) findSlot(ctx context.Context, rng *rand.Rand, doctorID, asPatient uuid.UUID) (string, slotJSON, error) {
	var dates datesResponse
	start := time.Now()
	status, err := s.do(ctx, http.MethodGet, "/v1/doctors/"+doctorID.String()+"/dates", identity.RolePatient, asPatient, nil, &dates)
	s.metrics.Dates.Record(time.Since(start), err == nil && status == http.StatusOK, false)
	if err != nil {
		return "", slotJSON{}, err
	}
	if status != http.StatusOK {
		return "", slotJSON{}, fmt.Errorf("list dates: status %d", status)
	}

	var selectable []string
	for _, d := range dates.Dates {
		if d.Selectable {
			selectable = append(selectable, d.Date)
		}
	}
	rng.Shuffle(len(selectable), func(i, j int) { selectable[i], selectable[j] = selectable[j], selectable[i] })

	for _, date := range selectable {
		var slots slotsResponse
		start := time.Now()
		path := "/v1/doctors/" + doctorID.String() + "/slots?date=" + url.QueryEscape(date)
		status, err := s.do(ctx, http.MethodGet, path, identity.RolePatient, asPatient, nil, &slots)
		s.metrics.Slots.Record(time.Since(start), err == nil && status == http.StatusOK, false)
		if err != nil {
			return "", slotJSON{}, err
		}
		if status != http.StatusOK || len(slots.Slots) == 0 {
			continue
		}
		return date, slots.Slots[rng.Intn(len(slots.Slots))], nil
	}
	return "", slotJSON{}, errNoSlot
}

func (s *Simulator) book(ctx context.Context, doctorID, patientID uuid.UUID, date string, slot slotJSON) (int, *appointmentJSON, error) {
	body := map[string]string{
		"doctor_id":  doctorID.String(),
		"patient_id": patientID.String(),
		"date":       date,
		"start_time": slot.StartTime,
		"end_time":   slot.EndTime,
		"type":       "in_person",
	}
	var appt appointmentJSON
	status, err := s.do(ctx, http.MethodPost, "/v1/appointments", identity.RolePatient, patientID, body, &appt)
	if err != nil || status != http.StatusCreated {
		return status, nil, err
	}
	return status, &appt, nil
}

// RaceRound has RaceContenders distinct patients book the same slot at
// the same moment. Exactly one of them must win.
func (s *Simulator) RaceRound(ctx context.Context) (*RaceResult, error) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	n := min(s.config.RaceContenders, len(s.pool.Patients))
	if len(s.pool.Doctors) == 0 {
		return nil, errors.New("no doctors loaded")
	}
	if n < 2 {
		return nil, errors.New("a race needs at least two patients")
	}

	var (
		doctorID uuid.UUID
		date     string
		slot     slotJSON
		err      error
	)
	for _, idx := range rng.Perm(len(s.pool.Doctors)) {
		doctorID = s.pool.Doctors[idx]
		date, slot, err = s.findSlot(ctx, rng, doctorID, s.pool.Patients[0])
		if err == nil {
			break
		}
		if !errors.Is(err, errNoSlot) {
			return nil, err
		}
	}
	if err != nil {
		return nil, err
	}

	result := &RaceResult{
		DoctorID:   doctorID.String(),
		Date:       date,
		StartTime:  slot.StartTime,
		Contenders: n,
	}

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		start = make(chan struct{})
	)
	for _, idx := range rng.Perm(len(s.pool.Patients))[:n] {
		patientID := s.pool.Patients[idx]
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			began := time.Now()
			status, appt, err := s.book(ctx, doctorID, patientID, date, slot)
			s.metrics.Booking.Record(time.Since(began), status == http.StatusCreated, status == http.StatusConflict)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && status == http.StatusCreated:
				result.Winners++
				s.pool.AddAppointment(bookedAppointment{ID: appt.ID, DoctorID: doctorID, PatientID: patientID})
			case err == nil && status == http.StatusConflict:
				result.Conflicts++
			default:
				result.Errors++
				s.log.Warn().Err(err).Int("status", status).Msg("race booking failed")
			}
		}()
	}
	close(start)
	wg.Wait()

	return result, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.ConfirmRatio:
				s.doConfirm(ctx, rng)
			case r < s.config.BookingRatio+s.config.ConfirmRatio+s.config.CancelRatio:
				s.doCancel(ctx, rng)
			default:
				if rng.Intn(2) == 0 {
					s.doReadByID(ctx, rng)
				} else {
					s.doListByPatient(ctx, rng)
				}
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	if len(s.pool.Doctors) == 0 || len(s.pool.Patients) == 0 {
		return
	}

	doctorID := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	date, slot, err := s.findSlot(ctx, rng, doctorID, patientID)
	if err != nil {
		return
	}

	start := time.Now()
	status, appt, err := s.book(ctx, doctorID, patientID, date, slot)
	latency := time.Since(start)

	success := err == nil && status == http.StatusCreated
	if success {
		s.pool.AddAppointment(bookedAppointment{ID: appt.ID, DoctorID: doctorID, PatientID: patientID})
	}
	s.metrics.Booking.Record(latency, success, status == http.StatusConflict)
}

func (s *Simulator) doConfirm(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, err := s.do(ctx, http.MethodPost, "/v1/appointments/"+appt.ID.String()+"/confirm",
		identity.RoleDoctor, appt.DoctorID, nil, nil)
	s.metrics.Confirm.Record(time.Since(start), err == nil && status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, err := s.do(ctx, http.MethodPost, "/v1/appointments/"+appt.ID.String()+"/cancel",
		identity.RolePatient, appt.PatientID, nil, nil)
	s.metrics.Cancel.Record(time.Since(start), err == nil && status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, err := s.do(ctx, http.MethodGet, "/v1/appointments/"+appt.ID.String(),
		identity.RolePatient, appt.PatientID, nil, nil)
	s.metrics.ReadByID.Record(time.Since(start), err == nil && status == http.StatusOK, false)
}

func (s *Simulator) doListByPatient(ctx context.Context, rng *rand.Rand) {
	if len(s.pool.Patients) == 0 {
		return
	}
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	status, err := s.do(ctx, http.MethodGet,
		fmt.Sprintf("/v1/appointments?patient_id=%s&limit=20&offset=0", patientID),
		identity.RolePatient, patientID, nil, nil)
	s.metrics.ListByPatient.Record(time.Since(start), err == nil && status == http.StatusOK, false)
}
