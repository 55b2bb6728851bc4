package onboarding

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/onboard/internal/customer"
)

func TestWorkflowGreeting(t *testing.T) {
	engine, _ := newTestEngine(t, nil)

	reply, err := engine.HandleTurn(context.Background(), "s1", "Hello!")
	require.NoError(t, err)
	assert.Equal(t, replyGreeting, reply)
}

func TestWorkflowOffTopic(t *testing.T) {
	engine, _ := newTestEngine(t, nil)

	reply, err := engine.HandleTurn(context.Background(), "s1", "Tell me a joke about cats")
	require.NoError(t, err)
	assert.Equal(t, replyOffTopic, reply)
}

func TestWorkflowAsksForIdentity(t *testing.T) {
	engine, _ := newTestEngine(t, nil)

	reply, err := engine.HandleTurn(context.Background(), "s1", "I want to register for an account")
	require.NoError(t, err)
	assert.Equal(t, replyAskIdentity, reply)
}

func TestWorkflowHappyPath(t *testing.T) {
	engine, customers := newTestEngine(t, branchHits())
	ctx := context.Background()

	reply, err := engine.HandleTurn(ctx, "s1", "I want to open an account")
	require.NoError(t, err)
	assert.Equal(t, replyAskIdentity, reply)

	reply, err = engine.HandleTurn(ctx, "s1", "I live in Denmark and my ID is 0101901234")
	require.NoError(t, err)
	assert.Contains(t, reply, "Identity verified: Mette Hansen")
	assert.Contains(t, reply, "Citizenship: Denmark")
	assert.Contains(t, reply, "(Yes/No)")

	reply, err = engine.HandleTurn(ctx, "s1", "Yes")
	require.NoError(t, err)
	assert.Contains(t, reply, "Account created successfully (Customer ID: ")
	assert.Contains(t, reply, "notified at cph@bank.example")

	// The customer landed in the store under the national id.
	key, _, err := customers.GetByExternalKey(ctx, "0101901234")
	require.NoError(t, err)
	assert.Contains(t, reply, key)
}

func TestWorkflowIdentityInFirstMessage(t *testing.T) {
	engine, _ := newTestEngine(t, branchHits())

	reply, err := engine.HandleTurn(context.Background(), "s1", "Register me, DK 0101901234")
	require.NoError(t, err)
	assert.Contains(t, reply, "Identity verified: Mette Hansen")
}

func TestWorkflowAgeGate(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	_, err := engine.HandleTurn(ctx, "s1", "I want to register")
	require.NoError(t, err)

	reply, err := engine.HandleTurn(ctx, "s1", "Denmark, ID 0202101234")
	require.NoError(t, err)
	assert.Equal(t, replyUnderage, reply)

	// The terminal reply discarded the session; a new turn starts over.
	reply, err = engine.HandleTurn(ctx, "s1", "hello")
	require.NoError(t, err)
	assert.Equal(t, replyGreeting, reply)
}

func TestWorkflowAgeGateBoundary(t *testing.T) {
	engine, _ := newTestEngine(t, branchHits())
	// Fixed clock: the 1990-01-01 applicant is exactly 18.
	engine.now = func() time.Time { return time.Date(2008, 1, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	reply, err := engine.HandleTurn(ctx, "s1", "register DK 0101901234")
	require.NoError(t, err)
	assert.Contains(t, reply, "Identity verified")
}

func TestWorkflowPermitGate(t *testing.T) {
	engine, _ := newTestEngine(t, branchHits())
	ctx := context.Background()

	reply, err := engine.HandleTurn(ctx, "s1", "register DK 1503851234")
	require.NoError(t, err)
	assert.Equal(t, replyAskPermit, reply)

	reply, err = engine.HandleTurn(ctx, "s1", "RP-778899")
	require.NoError(t, err)
	assert.Contains(t, reply, "Identity verified: Amir Khan")
}

func TestWorkflowPermitGateRejectsMismatch(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	_, err := engine.HandleTurn(ctx, "s1", "register DK 1503851234")
	require.NoError(t, err)

	reply, err := engine.HandleTurn(ctx, "s1", "RP-000000")
	require.NoError(t, err)
	assert.Equal(t, replyPermitFailed, reply)
}

func TestWorkflowDecline(t *testing.T) {
	engine, customers := newTestEngine(t, nil)
	ctx := context.Background()

	_, err := engine.HandleTurn(ctx, "s1", "register DK 0101901234")
	require.NoError(t, err)

	reply, err := engine.HandleTurn(ctx, "s1", "No")
	require.NoError(t, err)
	assert.Equal(t, replyDeclined, reply)

	_, _, err = customers.GetByExternalKey(ctx, "0101901234")
	assert.ErrorIs(t, err, customer.ErrRecordNotFound)
}

func TestWorkflowConfirmationReprompts(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	_, err := engine.HandleTurn(ctx, "s1", "register DK 0101901234")
	require.NoError(t, err)

	reply, err := engine.HandleTurn(ctx, "s1", "maybe later")
	require.NoError(t, err)
	assert.Contains(t, reply, "(Yes/No)")
}

func TestWorkflowExistingCustomer(t *testing.T) {
	engine, customers := newTestEngine(t, branchHits())
	ctx := context.Background()

	// First session registers the customer.
	_, err := engine.HandleTurn(ctx, "s1", "register DK 0101901234")
	require.NoError(t, err)
	_, err = engine.HandleTurn(ctx, "s1", "yes")
	require.NoError(t, err)

	key, _, err := customers.GetByExternalKey(ctx, "0101901234")
	require.NoError(t, err)

	// A second session with the same id short-circuits.
	reply, err := engine.HandleTurn(ctx, "s2", "register DK 0101901234")
	require.NoError(t, err)
	assert.Equal(t, "You already have an account (Customer ID: "+key+")", reply)
}

func TestWorkflowCreateOnceGuard(t *testing.T) {
	engine, _ := newTestEngine(t, branchHits())
	ctx := context.Background()

	// Force a session whose customer was already created; confirming again
	// must not call create a second time.
	state := NewState("s1")
	state.Step = StepAwaitingConfirmation
	state.Country = "DK"
	state.CreatedKey = "01ARZ3NDEKTSV4RRFFQ69G5FAV"
	state.Person = &RegistryPerson{Address: "Tokkerupvej 35, 2730 Herlev"}
	require.NoError(t, engine.sessions.Put(ctx, state))

	reply, err := engine.HandleTurn(ctx, "s1", "yes")
	require.NoError(t, err)
	assert.Contains(t, reply, "Account created successfully (Customer ID: 01ARZ3NDEKTSV4RRFFQ69G5FAV)")
}

func TestWorkflowIncompleteSnapshotTerminates(t *testing.T) {
	engine, _ := newTestEngine(t, branchHits())
	ctx := context.Background()

	// A snapshot without a name cannot be repaired by the user, so the
	// conversation must end instead of re-prompting forever.
	state := NewState("s1")
	state.Step = StepAwaitingConfirmation
	state.Country = "DK"
	state.NationalID = "0101909999"
	state.KeyType = "DanishNationalId"
	state.Person = &RegistryPerson{Address: "Tokkerupvej 35, 2730 Herlev"}
	require.NoError(t, engine.sessions.Put(ctx, state))

	reply, err := engine.HandleTurn(ctx, "s1", "yes")
	require.NoError(t, err)
	assert.Contains(t, reply, "Registration cannot be completed")
	assert.Contains(t, reply, "identity.firstName")
	assert.Contains(t, reply, "identity.lastName")

	// Terminal reply discarded the session.
	reply, err = engine.HandleTurn(ctx, "s1", "hello")
	require.NoError(t, err)
	assert.Equal(t, replyGreeting, reply)
}

func TestWorkflowLocationToken(t *testing.T) {
	// DK routes by postal code, the rest by city.
	assert.Equal(t, "2730", PostalCode("Tokkerupvej 35, 2730 Herlev"))
	assert.Equal(t, "Stockholm", City("Drottninggatan 71, 11136 Stockholm"))
}

func TestWorkflowUnknownIDRetries(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	reply, err := engine.HandleTurn(ctx, "s1", "register DK 9999999999")
	require.NoError(t, err)
	assert.Contains(t, reply, "Registry lookup failed")

	// The session is still waiting for a valid identity.
	reply, err = engine.HandleTurn(ctx, "s1", "DK 0101901234")
	require.NoError(t, err)
	assert.Contains(t, reply, "Identity verified")
}

func TestWorkflowPolicyQuestion(t *testing.T) {
	hits := branchHits()
	hits[0].Meta.Text = "Sweden:\nProof of address and personnummer are required."
	engine, _ := newTestEngine(t, hits)

	reply, err := engine.HandleTurn(context.Background(), "s1", "What are the requirements for Sweden?")
	require.NoError(t, err)
	assert.Equal(t, hits[0].Meta.Text, reply)
}

func TestWorkflowPolicyQuestionEmptyCorpus(t *testing.T) {
	engine, _ := newTestEngine(t, nil)

	reply, err := engine.HandleTurn(context.Background(), "s1", "What documents do I need?")
	require.NoError(t, err)
	assert.Equal(t, replyNoRules, reply)
}

func TestWorkflowSessionsAreIsolated(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	_, err := engine.HandleTurn(ctx, "a", "register DK 0101901234")
	require.NoError(t, err)

	// Session b is untouched by a's progress.
	reply, err := engine.HandleTurn(ctx, "b", "hi")
	require.NoError(t, err)
	assert.Equal(t, replyGreeting, reply)

	reply, err = engine.HandleTurn(ctx, "a", "YES")
	require.NoError(t, err)
	assert.Contains(t, reply, "Account created successfully")
}
