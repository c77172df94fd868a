package file

// snapshotSchema is the JSON Schema a stored snapshot document must satisfy
// before it is decoded. Event type tokens are the closed set from the events
// package.
const snapshotSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["version", "last_saved", "events"],
  "properties": {
    "version": {"type": "integer", "minimum": 1},
    "last_saved": {"type": "string"},
    "plan": {
      "type": "object",
      "required": ["id", "name", "status", "tasks"],
      "properties": {
        "id": {"type": "string"},
        "name": {"type": "string"},
        "status": {"enum": ["draft", "active", "completed", "archived"]},
        "tasks": {"type": "array"}
      }
    },
    "events": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "type", "timestamp", "plan_id", "actor"],
        "properties": {
          "id": {"type": "string"},
          "type": {
            "enum": [
              "plan_created", "plan_started", "plan_completed",
              "plan_archived", "plan_paused",
              "task_added", "task_started", "task_completed", "task_failed",
              "task_blocked", "task_unblocked", "task_cancelled",
              "note_added", "system_error"
            ]
          },
          "timestamp": {"type": "string"},
          "plan_id": {"type": "string"},
          "task_id": {"type": "string"},
          "actor": {"type": "string"},
          "details": {"type": "object"},
          "metadata": {"type": "object"}
        }
      }
    }
  }
}`
