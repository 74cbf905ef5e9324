package agent

// Capability tags carried by the factory-built agents.
const (
	CapabilitySupervise = "supervise"
	CapabilityCoding    = "coding"
	CapabilityKnowledge = "knowledge"
	CapabilityImage     = "image"
)

// Domain returns the validation domain implied by the agent's capabilities.
func (a *Agent) Domain() string {
	switch {
	case a.HasCapability(CapabilityCoding):
		return "coding"
	case a.HasCapability(CapabilityKnowledge):
		return "knowledge"
	default:
		return "general"
	}
}

// NewSupervisorAgent builds a router that can transfer to each worker.
func NewSupervisorAgent(name, model string, workers ...*Agent) *Agent {
	a := New(name).
		WithModel(model).
		WithDescription("Routes each request to the most suitable specialist.").
		WithInstructions("You are a supervisor. Decide which specialist should handle the request " +
			"and transfer the conversation to it. Answer directly only when no specialist fits.").
		WithCapabilities(CapabilitySupervise)
	for _, w := range workers {
		a = a.WithTools(NewHandoffTool(w))
	}
	return a
}

// NewCodingAgent builds an agent specialised in writing and reviewing code.
func NewCodingAgent(name, model string, tools ...*Tool) *Agent {
	return New(name).
		WithModel(model).
		WithDescription("Writes, explains and reviews source code.").
		WithInstructions("You are a senior software engineer. Always put code in fenced blocks " +
			"tagged with the language.").
		WithCapabilities(CapabilityCoding).
		WithTools(tools...)
}

// NewKnowledgeAgent builds a retrieval-augmented agent. The retrieved context is
// read from vars["retrieved_context"] at render time.
func NewKnowledgeAgent(name, model string, tools ...*Tool) *Agent {
	return New(name).
		WithModel(model).
		WithDescription("Answers questions from retrieved documents and cites sources.").
		WithInstructionsFunc(func(vars Variables) string {
			base := "You answer questions using the provided documents. Cite sources as [n]."
			if docs, ok := vars.String("retrieved_context"); ok {
				return base + "\n\nDocuments:\n" + docs
			}
			return base
		}).
		WithCapabilities(CapabilityKnowledge).
		WithTools(tools...)
}

// NewImageAgent builds an agent that describes and generates images.
func NewImageAgent(name, model string, tools ...*Tool) *Agent {
	return New(name).
		WithModel(model).
		WithDescription("Describes, analyses and generates images.").
		WithInstructions("You are an image specialist. Describe visual content precisely.").
		WithCapabilities(CapabilityImage).
		WithParallelToolCalls(false).
		WithTools(tools...)
}
