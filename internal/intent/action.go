package intent

// Action identifies a routable operation. The set of actions is closed:
// anything outside it is demoted to ActionChat before routing.
type Action string

const (
	ActionChat         Action = "chat"
	ActionHelp         Action = "help"
	ActionStatus       Action = "status"
	ActionSystemInfo   Action = "system_info"
	ActionReadFile     Action = "read_file"
	ActionWriteFile    Action = "write_file"
	ActionDeleteFile   Action = "delete_file"
	ActionListFiles    Action = "list_files"
	ActionSearchFiles  Action = "search_files"
	ActionSendFile     Action = "send_file"
	ActionScreenshot   Action = "screenshot"
	ActionOpenApp      Action = "open_app"
	ActionRunCommand   Action = "run_command"
	ActionRunScript    Action = "run_script"
	ActionKillProcess  Action = "kill_process"
	ActionLock         Action = "lock"
	ActionVolume       Action = "volume"
	ActionPower        Action = "power"
	ActionSendMessage  Action = "send_message"
	ActionSaveNote     Action = "save_note"
	ActionGetNotes     Action = "get_notes"
	ActionClearHistory Action = "clear_history"
)

var knownActions = map[Action]bool{
	ActionChat:         true,
	ActionHelp:         true,
	ActionStatus:       true,
	ActionSystemInfo:   true,
	ActionReadFile:     true,
	ActionWriteFile:    true,
	ActionDeleteFile:   true,
	ActionListFiles:    true,
	ActionSearchFiles:  true,
	ActionSendFile:     true,
	ActionScreenshot:   true,
	ActionOpenApp:      true,
	ActionRunCommand:   true,
	ActionRunScript:    true,
	ActionKillProcess:  true,
	ActionLock:         true,
	ActionVolume:       true,
	ActionPower:        true,
	ActionSendMessage:  true,
	ActionSaveNote:     true,
	ActionGetNotes:     true,
	ActionClearHistory: true,
}

// Known reports whether name is a member of the closed action set.
func Known(name string) bool {
	return knownActions[Action(name)]
}

// All returns every known action. The order is unspecified.
func All() []Action {
	result := make([]Action, 0, len(knownActions))
	for a := range knownActions {
		result = append(result, a)
	}
	return result
}
