// Package schema fija el layout canónico del árbol realtime. Todos los paths
// se construyen acá; ningún módulo arma strings de path a mano.
//
//	/users/{uid}                                   -> perfil (discriminado por role)
//	/facilities/{facilityId}                       -> Facility
//	/groups/{groupId}                              -> Group
//	/children/{childId}                            -> Child
//	/groupActivities/{groupId}/{date}/{activityId} -> Activity (índice para teachers)
//	/childActivities/{childId}/{date}/{activityId} -> Activity (índice para parents)
//	/parentChildren/{parentId}/{childId}           -> true
//	/groupChildren/{groupId}/{childId}             -> true
//	/teacherGroups/{teacherId}/{groupId}           -> true
//	/facilityChildren/{facilityId}/{childId}       -> true
//	/facilityUsers/{facilityId}/{userId}           -> { role }
//	/facilityGroups/{facilityId}/{groupId}         -> true
//	/presence/{userId}                             -> { state, lastChanged, ... }
//
// Las tablas lookup son índices inversos denormalizados: el store no garantiza
// su consistencia con los campos forward (parentIds, currentGroupId,
// teacherIds). Cada mutador que toca una entidad es responsable de mantener
// el espejo en la misma operación lógica.
package schema

import "time"

func UserPath(uid string) string          { return "/users/" + uid }
func FacilityPath(id string) string       { return "/facilities/" + id }
func GroupPath(id string) string          { return "/groups/" + id }
func ChildPath(id string) string          { return "/children/" + id }
func PresencePath(userID string) string   { return "/presence/" + userID }

func GroupActivityPath(groupID, date, activityID string) string {
	return "/groupActivities/" + groupID + "/" + date + "/" + activityID
}

func ChildActivityPath(childID, date, activityID string) string {
	return "/childActivities/" + childID + "/" + date + "/" + activityID
}

func GroupActivitiesPath(groupID, date string) string {
	return "/groupActivities/" + groupID + "/" + date
}

func ChildActivitiesPath(childID, date string) string {
	return "/childActivities/" + childID + "/" + date
}

func ParentChildPath(parentID, childID string) string {
	return "/parentChildren/" + parentID + "/" + childID
}

func ParentChildrenPath(parentID string) string { return "/parentChildren/" + parentID }

func GroupChildPath(groupID, childID string) string {
	return "/groupChildren/" + groupID + "/" + childID
}

func GroupChildrenPath(groupID string) string { return "/groupChildren/" + groupID }

func TeacherGroupPath(teacherID, groupID string) string {
	return "/teacherGroups/" + teacherID + "/" + groupID
}

func TeacherGroupsPath(teacherID string) string { return "/teacherGroups/" + teacherID }

func FacilityChildPath(facilityID, childID string) string {
	return "/facilityChildren/" + facilityID + "/" + childID
}

func FacilityUserPath(facilityID, userID string) string {
	return "/facilityUsers/" + facilityID + "/" + userID
}

func FacilityGroupPath(facilityID, groupID string) string {
	return "/facilityGroups/" + facilityID + "/" + groupID
}

// Date deriva la clave de fecha de los índices de actividades a partir del
// timestamp de la propia actividad.
func Date(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
