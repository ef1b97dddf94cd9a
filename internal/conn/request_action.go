package conn

import (
	"fmt"
	"net/http"

	"github.com/tobsdb/samplestore/internal/auth"
	"github.com/tobsdb/samplestore/internal/engine"
)

type RequestAction string

const (
	// database actions
	RequestActionCreateDB     RequestAction = "createDatabase"
	RequestActionCreateTables RequestAction = "createTables"
	RequestActionListTables   RequestAction = "listTables"

	// rows actions
	RequestActionInsert   RequestAction = "insert"
	RequestActionFindMany RequestAction = "findMany"

	// samples actions
	RequestActionCollectSamples RequestAction = "collectSamples"
	RequestActionDeleteSamples  RequestAction = "deleteSamples"
	RequestActionTupleSamples   RequestAction = "tupleSamples"
	RequestActionColumnSamples  RequestAction = "columnSamples"
	RequestActionTriggerRefresh RequestAction = "triggerRefresh"

	// user actions
	RequestActionCreateUser RequestAction = "createUser"
	RequestActionDeleteUser RequestAction = "deleteUser"
)

func (action RequestAction) IsReadOnly() bool {
	return action == RequestActionListTables || action == RequestActionFindMany || action == RequestActionTupleSamples ||
		action == RequestActionColumnSamples
}

func (action RequestAction) IsDBAction() bool {
	switch action {
	default:
		return false
	case RequestActionCreateDB, RequestActionCreateTables,
		RequestActionCreateUser, RequestActionDeleteUser:
		return true
	}
}

// RequiredRole is the least privileged role allowed to run action.
func (action RequestAction) RequiredRole() auth.UserRole {
	if action.IsDBAction() {
		return auth.UserRoleAdmin
	}
	if action.IsReadOnly() {
		return auth.UserRoleReadOnly
	}
	return auth.UserRoleReadWrite
}

func ActionHandler(e *engine.Engine, action RequestAction, user *auth.User, raw []byte) Response {
	if !user.HasClearance(action.RequiredRole()) {
		return NewErrorResponse(http.StatusForbidden, auth.InsufficientPermissions.Error())
	}

	switch action {
	case RequestActionCreateDB:
		return CreateDBReqHandler(e, raw)
	case RequestActionCreateTables:
		return CreateTablesReqHandler(e, raw)
	case RequestActionListTables:
		return ListTablesReqHandler(e)
	case RequestActionInsert:
		return InsertReqHandler(e, raw)
	case RequestActionFindMany:
		return FindManyReqHandler(e, raw)
	case RequestActionCollectSamples:
		return CollectSamplesReqHandler(e, raw)
	case RequestActionDeleteSamples:
		return DeleteSamplesReqHandler(e, raw)
	case RequestActionTupleSamples:
		return TupleSamplesReqHandler(e, raw)
	case RequestActionColumnSamples:
		return ColumnSamplesReqHandler(e, raw)
	case RequestActionTriggerRefresh:
		return TriggerRefreshReqHandler(e, raw)
	case RequestActionCreateUser:
		return CreateUserReqHandler(e, raw)
	case RequestActionDeleteUser:
		return DeleteUserReqHandler(e, raw)
	default:
		return NewErrorResponse(http.StatusBadRequest, fmt.Sprintf("unknown action: %s", action))
	}
}
