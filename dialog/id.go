// Package dialog implements the DialogSetId/DialogId identity types and
// the Dialog entity spec.md §3 describes, plus the generational handle
// arena Design Notes §9 calls for. Grounded on the key/lookup shape of
// teacher_dialog/manager.go's DialogManager
// (GetDialogByCallID/GetDialogByTags).
package dialog

// MethodClass distinguishes the usage-establishing method family a
// DialogSetId was created for (part of the DialogSetId triple, spec.md
// §3).
type MethodClass string

const (
	MethodClassInvite    MethodClass = "invite"
	MethodClassSubscribe MethodClass = "subscribe"
	MethodClassRefer     MethodClass = "refer"
	MethodClassRegister  MethodClass = "register"
	MethodClassPublish   MethodClass = "publish"
	MethodClassPager     MethodClass = "pager"
	MethodClassOther     MethodClass = "other"
)

// SetId is the DialogSetId triple: (call-id, local-tag, method-class).
// Structural equality, suitable as a map key.
type SetId struct {
	CallID      string
	LocalTag    string
	MethodClass MethodClass
}

// Id is (DialogSetId, remote-tag). RemoteTag may be empty to mean
// "not yet established".
type Id struct {
	Set       SetId
	RemoteTag string
}
