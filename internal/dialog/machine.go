package dialog

import (
	"errors"
	"fmt"
	"sync"

	"github.com/avireply/avireply/internal/models"
	"github.com/avireply/avireply/pkg/validation"
)

// State is the step a user is at in a settings conversation.
type State string

const (
	StateIdle             State = "idle"
	StateAwaitingClientID State = "awaiting_client_id"
	StateAwaitingSecret   State = "awaiting_secret"
	StateAwaitingUserID   State = "awaiting_user_id"
	StateAwaitingTemplate State = "awaiting_template"
)

// ErrUnexpectedInput means the user sent text while no step was waiting for it.
var ErrUnexpectedInput = errors.New("no input expected")

// Result tells the caller what to do after a step.
type Result struct {
	// Next is the state the user moved to.
	Next State
	// Credentials is set once all three credential steps are complete.
	Credentials *models.Credentials
	// Template is set when a template was submitted.
	Template string
}

type session struct {
	state State
	creds models.Credentials
}

// Machine keeps in-memory conversation state per user. Nothing here is persisted;
// a restart drops unfinished conversations.
type Machine struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func NewMachine() *Machine {
	return &Machine{sessions: make(map[string]*session)}
}

func (m *Machine) State(userID string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[userID]; ok {
		return s.state
	}
	return StateIdle
}

// BeginCredentials starts collecting client ID, secret and marketplace user ID.
// Any unfinished conversation is discarded.
func (m *Machine) BeginCredentials(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[userID] = &session{state: StateAwaitingClientID}
}

// BeginTemplate starts waiting for a reply template.
func (m *Machine) BeginTemplate(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[userID] = &session{state: StateAwaitingTemplate}
}

// Cancel returns the user to idle.
func (m *Machine) Cancel(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}

// Submit feeds user text into the current step. Invalid input keeps the user at
// the same step and returns the validation error.
func (m *Machine) Submit(userID, text string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok {
		return Result{Next: StateIdle}, ErrUnexpectedInput
	}

	input := validation.NormalizeInput(text)

	switch s.state {
	case StateAwaitingClientID:
		if err := validation.ValidateCredential("client ID", input); err != nil {
			return Result{Next: s.state}, err
		}
		s.creds.ClientID = input
		s.state = StateAwaitingSecret
		return Result{Next: s.state}, nil

	case StateAwaitingSecret:
		if err := validation.ValidateCredential("client secret", input); err != nil {
			return Result{Next: s.state}, err
		}
		s.creds.ClientSecret = input
		s.state = StateAwaitingUserID
		return Result{Next: s.state}, nil

	case StateAwaitingUserID:
		if err := validation.ValidateMarketplaceUserID(input); err != nil {
			return Result{Next: s.state}, err
		}
		creds := s.creds
		creds.MarketplaceUserID = input
		delete(m.sessions, userID)
		return Result{Next: StateIdle, Credentials: &creds}, nil

	case StateAwaitingTemplate:
		template, err := validation.ValidateTemplate(text)
		if err != nil {
			return Result{Next: s.state}, err
		}
		delete(m.sessions, userID)
		return Result{Next: StateIdle, Template: template}, nil
	}

	delete(m.sessions, userID)
	return Result{Next: StateIdle}, fmt.Errorf("%w: unknown state %q", ErrUnexpectedInput, s.state)
}
