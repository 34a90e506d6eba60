package rbac

// Default policy for the assessment API. Expand as needed.
var RolePermissions = map[string][]string{
	"student": {
		"quiz:view",
		"attempt:start",
		"attempt:answer",
		"attempt:finish",
		"attempt:view-own",
	},
	"teacher": {
		"quiz:*",
		"attempt:start",
		"attempt:answer",
		"attempt:finish",
		"attempt:view-all",
		"attempt:force",
		"attempt:revoke",
		"gradebook:commit",
		"grant:*",
	},
	"admin": {
		"*", // everything
	},
}
