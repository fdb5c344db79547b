package upnp

import (
	"encoding/xml"
	"io"

	"github.com/muurk/lanprobe/internal/xmlstate"
)

// ServiceNamespace is the XML namespace of service control point
// descriptions.
const ServiceNamespace = "urn:schemas-upnp-org:service-1-0"

// ArgumentDirection tells whether an action argument is passed in or
// returned. Arguments without an explicit direction count as output.
type ArgumentDirection int

// Argument directions.
const (
	DirectionOutput ArgumentDirection = iota
	DirectionInput
)

var argumentDirections = map[string]ArgumentDirection{
	"in":  DirectionInput,
	"out": DirectionOutput,
}

// ArgumentFlags carries the boolean markers of an argument.
type ArgumentFlags uint8

// ArgumentReturnValue marks the argument carrying the action's return
// value, from the retval element.
const ArgumentReturnValue ArgumentFlags = 1 << 0

// Argument is one parameter of an action.
type Argument struct {
	Name          string
	Direction     ArgumentDirection
	Flags         ArgumentFlags
	StateVariable string
}

// ActionFlags carries the boolean markers of an action.
type ActionFlags uint8

// ActionOptional marks actions a service may omit.
const ActionOptional ActionFlags = 1 << 0

// Action is one operation offered by a service.
type Action struct {
	Name      string
	Flags     ActionFlags
	Arguments []Argument
}

// DataType enumerates the UPnP state variable types.
type DataType int

// UPnP data types. DataTypeUnknown marks values outside the standard
// set; their raw name is kept alongside.
const (
	DataTypeUnknown DataType = iota

	DataTypeInt8
	DataTypeInt16
	DataTypeInt32
	DataTypeInt64

	DataTypeUInt8
	DataTypeUInt16
	DataTypeUInt32
	DataTypeUInt64

	DataTypeInt
	DataTypeFloat
	DataTypeDouble
	DataTypeFixed

	DataTypeChar
	DataTypeString

	DataTypeDate
	DataTypeDateTime
	DataTypeLocalDateTime
	DataTypeTime
	DataTypeLocalTime

	DataTypeBool
	DataTypeURI
	DataTypeUUID

	DataTypeBase64
	DataTypeBinHex
)

var dataTypes = map[string]DataType{
	"i1":          DataTypeInt8,
	"i2":          DataTypeInt16,
	"i4":          DataTypeInt32,
	"i8":          DataTypeInt64,
	"ui1":         DataTypeUInt8,
	"ui2":         DataTypeUInt16,
	"ui4":         DataTypeUInt32,
	"ui8":         DataTypeUInt64,
	"int":         DataTypeInt,
	"r4":          DataTypeFloat,
	"r8":          DataTypeDouble,
	"number":      DataTypeDouble,
	"fixed.14.4":  DataTypeFixed,
	"char":        DataTypeChar,
	"string":      DataTypeString,
	"date":        DataTypeDate,
	"datetime":    DataTypeDateTime,
	"datetime.tz": DataTypeLocalDateTime,
	"time":        DataTypeTime,
	"time.tz":     DataTypeLocalTime,
	"boolean":     DataTypeBool,
	"uri":         DataTypeURI,
	"uuid":        DataTypeUUID,
	"bin.base64":  DataTypeBase64,
	"bin.hex":     DataTypeBinHex,
}

// VariableFlags carries the boolean markers of a state variable.
type VariableFlags uint8

// VariableSendsEvents marks evented variables, from the sendEvents
// attribute.
const VariableSendsEvents VariableFlags = 1 << 0

// ValueRange bounds a numeric state variable.
type ValueRange struct {
	Minimum int64
	Maximum int64
	Step    int64
}

// StateVariable is one entry of the service state table.
type StateVariable struct {
	Name  string
	Flags VariableFlags

	// DataType is the declared type; RawDataType carries the original
	// spelling when the type is not one of the standard names.
	DataType    DataType
	RawDataType string

	DefaultValue  string
	AllowedValues []string
	ValueRange    ValueRange
}

// ControlPointDescription is a decoded SCPD document.
type ControlPointDescription struct {
	SpecVersion    xmlstate.Version
	Actions        []Action
	StateVariables []StateVariable
}

// Grammar states of the SCPD document.
const (
	scpdStateDocument xmlstate.State = iota
	scpdStateRoot
	scpdStateSpecVersion
	scpdStateActionList
	scpdStateAction
	scpdStateArgumentList
	scpdStateArgument
	scpdStateServiceStateTable
	scpdStateStateVariable
	scpdStateAllowedValueList
	scpdStateAllowedValueRange
)

// ParseControlPointDescription decodes a service control point
// description document.
func ParseControlPointDescription(r io.Reader) (*ControlPointDescription, error) {
	var scpd ControlPointDescription

	action := func() *Action { return &scpd.Actions[len(scpd.Actions)-1] }
	argument := func() *Argument {
		arguments := action().Arguments
		return &arguments[len(arguments)-1]
	}
	variable := func() *StateVariable { return &scpd.StateVariables[len(scpd.StateVariables)-1] }

	grammar := xmlstate.StateTable{
		scpdStateDocument: {
			"scpd": xmlstate.Transition(scpdStateRoot),
		},
		scpdStateRoot: {
			"specVersion":       xmlstate.Transition(scpdStateSpecVersion),
			"actionList":        xmlstate.Transition(scpdStateActionList),
			"serviceStateTable": xmlstate.Transition(scpdStateServiceStateTable),
		},
		scpdStateSpecVersion: {
			"major": xmlstate.AssignVersion(&scpd.SpecVersion, xmlstate.SegmentMajor),
			"minor": xmlstate.AssignVersion(&scpd.SpecVersion, xmlstate.SegmentMinor),
		},
		scpdStateActionList: {
			"action": xmlstate.TransitionInto(scpdStateAction, func() {
				scpd.Actions = append(scpd.Actions, Action{})
			}),
		},
		scpdStateAction: {
			"name":         xmlstate.Assign(func(s string) { action().Name = s }),
			"argumentList": xmlstate.Transition(scpdStateArgumentList),
			"Optional": xmlstate.AssignFlag(func(enabled bool) {
				setFlag(&action().Flags, uint8(ActionOptional), enabled)
			}),
		},
		scpdStateArgumentList: {
			"argument": xmlstate.TransitionInto(scpdStateArgument, func() {
				action().Arguments = append(action().Arguments, Argument{})
			}),
		},
		scpdStateArgument: {
			"name": xmlstate.Assign(func(s string) { argument().Name = s }),
			"direction": xmlstate.AssignEnum(argumentDirections, func(d ArgumentDirection) {
				argument().Direction = d
			}),
			"retval": xmlstate.AssignFlag(func(enabled bool) {
				setFlag(&argument().Flags, uint8(ArgumentReturnValue), enabled)
			}),
			"relatedStateVariable": xmlstate.Assign(func(s string) { argument().StateVariable = s }),
		},
		scpdStateServiceStateTable: {
			"stateVariable": xmlstate.TransitionInto(scpdStateStateVariable, func() {
				scpd.StateVariables = append(scpd.StateVariables, StateVariable{})
			}),
		},
		scpdStateStateVariable: {
			"name": xmlstate.Assign(func(s string) { variable().Name = s }),
			"dataType": xmlstate.AssignEnumOpportunistic(dataTypes,
				func(t DataType) { variable().DataType = t },
				func(raw string) { variable().RawDataType = raw }),
			"defaultValue":      xmlstate.Assign(func(s string) { variable().DefaultValue = s }),
			"allowedValueList":  xmlstate.Transition(scpdStateAllowedValueList),
			"allowedValueRange": xmlstate.Transition(scpdStateAllowedValueRange),
			"@sendEvents": xmlstate.AssignFlag(func(enabled bool) {
				setFlag(&variable().Flags, uint8(VariableSendsEvents), enabled)
			}),
		},
		scpdStateAllowedValueList: {
			"allowedValue": xmlstate.Assign(func(s string) {
				variable().AllowedValues = append(variable().AllowedValues, s)
			}),
		},
		scpdStateAllowedValueRange: {
			"minimum": xmlstate.Assign(func(n int64) { variable().ValueRange.Minimum = n }),
			"maximum": xmlstate.Assign(func(n int64) { variable().ValueRange.Maximum = n }),
			"step":    xmlstate.Assign(func(n int64) { variable().ValueRange.Step = n }),
		},
	}

	parser := xmlstate.NewParser(xml.NewDecoder(r))
	if err := parser.Parse(scpdStateDocument, xmlstate.NamespaceTable{ServiceNamespace: grammar}); err != nil {
		return nil, err
	}

	return &scpd, nil
}

func setFlag[T ~uint8](flags *T, bit uint8, enabled bool) {
	if enabled {
		*flags |= T(bit)
	} else {
		*flags &^= T(bit)
	}
}
