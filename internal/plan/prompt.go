package plan

// planningSystemPrompt frames the planner call.
const planningSystemPrompt = `You turn user requests into execution plans for a pool of specialised workers.
Workers run steps in parallel unless a step depends on another.`

// planningPrompt is the prompt template for request translation.
const planningPrompt = `Translate this user request into an execution plan.

User request:
%s
%s
Available worker types: %s

Return ONLY a JSON object with this exact structure (no other text):
{
  "intent": {
    "type": "short label such as code, research, writing, data",
    "complexity": "simple|moderate|complex",
    "required_capabilities": ["capability"]
  },
  "steps": [
    {
      "id": "step_1",
      "name": "Short step name",
      "description": "What the worker must do, self-contained",
      "agent_type": "one of the available worker types",
      "skills": ["skill"],
      "dependencies": ["ids of steps that must finish first"],
      "estimated_duration": 60
    }
  ],
  "critical_path": ["step_1"],
  "total_estimated_duration": 60
}

Guidelines:
- Step ids must be unique; dependencies refer to step ids
- Only add a dependency when a step needs another step's output
- Use an empty array [] for dependencies if there are none
- estimated_duration is in seconds
- Prefer few, substantial steps over many trivial ones`
