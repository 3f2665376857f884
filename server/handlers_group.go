package server

import (
	"encoding/json"
	"strings"
	"time"

	"yegnachat/db"
	"yegnachat/models"
	"yegnachat/protocol"
)

func dedupIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func normalizeRole(role string) string {
	role = strings.ToLower(role)
	switch role {
	case db.RoleAdmin, db.RoleMember:
		return role
	default:
		return ""
	}
}

func memberInfosOf(members []models.GroupMember) []protocol.MemberInfo {
	out := make([]protocol.MemberInfo, 0, len(members))
	for _, m := range members {
		out = append(out, protocol.MemberInfo{
			ID:        m.UserID,
			Username:  m.Username,
			AvatarURL: m.AvatarURL,
			Role:      m.Role,
		})
	}
	return out
}

// memberOf reports whether the user belongs to the group, mapping storage
// failures into the dispatcher's error taxonomy.
func (d *Dispatcher) memberOf(groupID, userID int64) (bool, error) {
	ok, err := d.db.IsGroupMember(groupID, userID)
	if err != nil {
		return false, storageErr(err)
	}
	return ok, nil
}

// roleAtLeastAdmin reports whether the user holds the admin or owner role.
func (d *Dispatcher) roleAtLeastAdmin(groupID, userID int64) (bool, error) {
	role, err := d.db.GroupRole(groupID, userID)
	if err == db.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, storageErr(err)
	}
	return role == db.RoleAdmin || role == db.RoleOwner, nil
}

func (d *Dispatcher) handleCreateGroup(c *Conn, payload json.RawMessage) (*protocol.Reply, error) {
	var req protocol.CreateGroupRequest
	if err := protocol.Bind(payload, &req); err != nil {
		return nil, err
	}

	creatorID := c.Session().UserID
	groupID, err := d.db.CreateGroup(req.Name, req.About, req.AvatarURL, creatorID, time.Now())
	if err != nil {
		return nil, storageErr(err)
	}

	// Initial members come in the same request. The creator is already
	// enrolled as owner, so skip them and anyone already present.
	for _, userID := range dedupIDs(req.UserIDs) {
		if userID == creatorID {
			continue
		}
		in, err := d.memberOf(groupID, userID)
		if err != nil {
			return nil, err
		}
		if in {
			continue
		}
		if err := d.db.AddGroupMember(groupID, userID, db.RoleMember); err != nil {
			return nil, storageErr(err)
		}
	}

	return protocol.NewReply("create_group_response", protocol.CreateGroupResponse{
		Status:  protocol.StatusOK,
		GroupID: groupID,
	}), nil
}

func (d *Dispatcher) handleAddUsersToGroup(c *Conn, payload json.RawMessage) (*protocol.Reply, error) {
	var req protocol.AddUsersToGroupRequest
	if err := protocol.Bind(payload, &req); err != nil {
		return nil, err
	}

	in, err := d.memberOf(req.GroupID, c.Session().UserID)
	if err != nil {
		return nil, err
	}
	if !in {
		return protocol.NewReply("add_user_to_group_response", protocol.AddUsersToGroupResponse{
			Status:  protocol.StatusError,
			GroupID: req.GroupID,
			Message: "You are not a member of this group",
		}), nil
	}

	var toAdd []int64
	for _, userID := range dedupIDs(req.UserIDs) {
		present, err := d.memberOf(req.GroupID, userID)
		if err != nil {
			return nil, err
		}
		if !present {
			toAdd = append(toAdd, userID)
		}
	}

	if len(toAdd) == 0 {
		return protocol.NewReply("add_user_to_group_response", protocol.AddUsersToGroupResponse{
			Status:  protocol.StatusOK,
			GroupID: req.GroupID,
			Message: "No new users to add",
		}), nil
	}

	if err := d.db.AddGroupMembers(req.GroupID, toAdd); err != nil {
		return nil, storageErr(err)
	}

	return protocol.NewReply("add_user_to_group_response", protocol.AddUsersToGroupResponse{
		Status:     protocol.StatusOK,
		GroupID:    req.GroupID,
		AddedCount: len(toAdd),
	}), nil
}

func (d *Dispatcher) handleAddGroupMember(c *Conn, payload json.RawMessage) (*protocol.Reply, error) {
	var req protocol.AddGroupMemberRequest
	if err := protocol.Bind(payload, &req); err != nil {
		return nil, err
	}

	in, err := d.memberOf(req.GroupID, c.Session().UserID)
	if err != nil {
		return nil, err
	}
	if !in {
		return protocol.NewReply("add_group_member_response", protocol.AddGroupMemberResponse{
			Status:  protocol.StatusError,
			Message: "You are not a member of this group",
		}), nil
	}

	user, err := d.db.GetUserByUsername(req.Username)
	if err == db.ErrNoRows {
		return protocol.NewReply("add_group_member_response", protocol.AddGroupMemberResponse{
			Status:  protocol.StatusError,
			Message: "User not found",
		}), nil
	}
	if err != nil {
		return nil, storageErr(err)
	}

	present, err := d.memberOf(req.GroupID, user.ID)
	if err != nil {
		return nil, err
	}
	if present {
		return protocol.NewReply("add_group_member_response", protocol.AddGroupMemberResponse{
			Status:  protocol.StatusError,
			Message: "User is already in the group",
		}), nil
	}

	if err := d.db.AddGroupMember(req.GroupID, user.ID, db.RoleMember); err != nil {
		return nil, storageErr(err)
	}

	return protocol.NewReply("add_group_member_response", protocol.AddGroupMemberResponse{
		Status:        protocol.StatusOK,
		GroupID:       req.GroupID,
		AddedUsername: req.Username,
	}), nil
}

func (d *Dispatcher) handleRemoveUserFromGroup(c *Conn, payload json.RawMessage) (*protocol.Reply, error) {
	var req protocol.GroupUserRequest
	if err := protocol.Bind(payload, &req); err != nil {
		return nil, err
	}

	admin, err := d.roleAtLeastAdmin(req.GroupID, c.Session().UserID)
	if err != nil {
		return nil, err
	}
	if !admin {
		return protocol.NewReply("remove_user_from_group_response", protocol.RemoveGroupMemberResponse{
			Status:  protocol.StatusError,
			Message: "You are not an admin of this group",
		}), nil
	}

	removed, err := d.db.RemoveGroupMember(req.GroupID, req.UserID)
	if err != nil {
		return nil, storageErr(err)
	}

	status := protocol.StatusOK
	if !removed {
		status = protocol.StatusError
	}
	return protocol.NewReply("remove_user_from_group_response", protocol.RemoveGroupMemberResponse{
		Status:        status,
		RemovedUserID: req.UserID,
	}), nil
}

func (d *Dispatcher) handlePromoteDemoteUser(c *Conn, payload json.RawMessage) (*protocol.Reply, error) {
	var req protocol.ChangeRoleRequest
	if err := protocol.Bind(payload, &req); err != nil {
		return nil, err
	}

	role, err := d.db.GroupRole(req.GroupID, c.Session().UserID)
	if err != nil && err != db.ErrNoRows {
		return nil, storageErr(err)
	}
	if role != db.RoleOwner {
		return protocol.NewReply("promote_demote_user_response", protocol.ChangeRoleResponse{
			Status:  protocol.StatusError,
			Message: "Only the owner can change roles",
		}), nil
	}

	newRole := normalizeRole(req.NewRole)
	if newRole == "" {
		return nil, validationErrf("new_role must be admin or member")
	}

	updated, err := d.db.UpdateGroupRole(req.GroupID, req.UserID, newRole)
	if err != nil {
		return nil, storageErr(err)
	}

	status := protocol.StatusOK
	if !updated {
		status = protocol.StatusError
	}
	return protocol.NewReply("promote_demote_user_response", protocol.ChangeRoleResponse{
		Status:  status,
		UserID:  req.UserID,
		NewRole: newRole,
	}), nil
}

func (d *Dispatcher) handleLeaveGroup(c *Conn, payload json.RawMessage) (*protocol.Reply, error) {
	var req protocol.GroupIDRequest
	if err := protocol.Bind(payload, &req); err != nil {
		return nil, err
	}

	userID := c.Session().UserID
	in, err := d.memberOf(req.GroupID, userID)
	if err != nil {
		return nil, err
	}
	if !in {
		return protocol.NewReply("leave_group_response", protocol.LeaveGroupResponse{
			Status:  protocol.StatusError,
			GroupID: req.GroupID,
			Message: "You are not a member of this group",
		}), nil
	}

	left, err := d.db.RemoveGroupMember(req.GroupID, userID)
	if err != nil {
		return nil, storageErr(err)
	}

	return protocol.NewReply("leave_group_response", protocol.LeaveGroupResponse{
		Status:  protocol.StatusOK,
		GroupID: req.GroupID,
		Left:    left,
	}), nil
}

func (d *Dispatcher) handleListGroupsForUser(c *Conn, _ json.RawMessage) (*protocol.Reply, error) {
	groups, err := d.db.ListGroupsForUser(c.Session().UserID)
	if err != nil {
		return nil, storageErr(err)
	}

	return protocol.NewReply("list_groups_for_user_response", protocol.GroupListResponse{
		Status: protocol.StatusOK,
		Groups: groupSummariesOf(groups),
	}), nil
}

func (d *Dispatcher) handleGetGroupInfo(c *Conn, payload json.RawMessage) (*protocol.Reply, error) {
	var req protocol.GroupIDRequest
	if err := protocol.Bind(payload, &req); err != nil {
		return nil, err
	}

	group, err := d.db.GetGroupInfo(req.GroupID)
	if err == db.ErrNoRows {
		return protocol.NewReply("get_group_info_response", protocol.GroupInfoResponse{
			Status:  protocol.StatusError,
			Message: "Group not found",
		}), nil
	}
	if err != nil {
		return nil, storageErr(err)
	}

	return protocol.NewReply("get_group_info_response", protocol.GroupInfoResponse{
		Status: protocol.StatusOK,
		Group: &protocol.GroupInfo{
			ID:        group.ID,
			Name:      group.Name,
			About:     group.About,
			AvatarURL: group.AvatarURL,
			CreatedBy: group.CreatedBy,
		},
	}), nil
}

func (d *Dispatcher) handleUpdateGroupInfo(c *Conn, payload json.RawMessage) (*protocol.Reply, error) {
	var req protocol.UpdateGroupInfoRequest
	if err := protocol.Bind(payload, &req); err != nil {
		return nil, err
	}

	admin, err := d.roleAtLeastAdmin(req.GroupID, c.Session().UserID)
	if err != nil {
		return nil, err
	}
	if !admin {
		return protocol.NewReply("update_group_info_response", protocol.GroupInfoResponse{
			Status:  protocol.StatusError,
			Message: "Only admins can update group info",
		}), nil
	}

	updated, err := d.db.UpdateGroupInfo(req.GroupID, req.Name, req.About, req.AvatarURL)
	if err != nil {
		return nil, storageErr(err)
	}

	status := protocol.StatusOK
	if !updated {
		status = protocol.StatusError
	}
	return protocol.NewReply("update_group_info_response", protocol.GroupInfoResponse{
		Status: status,
		Group: &protocol.GroupInfo{
			ID:        req.GroupID,
			Name:      req.Name,
			About:     req.About,
			AvatarURL: req.AvatarURL,
		},
	}), nil
}

func (d *Dispatcher) handleListGroupMembers(c *Conn, payload json.RawMessage) (*protocol.Reply, error) {
	var req protocol.GroupIDRequest
	if err := protocol.Bind(payload, &req); err != nil {
		return nil, err
	}

	members, err := d.db.ListGroupMembers(req.GroupID)
	if err != nil {
		return nil, storageErr(err)
	}

	return protocol.NewReply("list_group_members_response", protocol.GroupMembersResponse{
		Status:  protocol.StatusOK,
		GroupID: req.GroupID,
		Members: memberInfosOf(members),
	}), nil
}

func (d *Dispatcher) handleListGroupAdmins(c *Conn, payload json.RawMessage) (*protocol.Reply, error) {
	var req protocol.GroupIDRequest
	if err := protocol.Bind(payload, &req); err != nil {
		return nil, err
	}

	admins, err := d.db.ListGroupAdmins(req.GroupID)
	if err != nil {
		return nil, storageErr(err)
	}

	return protocol.NewReply("list_group_admins_response", protocol.GroupAdminsResponse{
		Status:  protocol.StatusOK,
		GroupID: req.GroupID,
		Admins:  memberInfosOf(admins),
	}), nil
}
