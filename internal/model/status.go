package model

import "fmt"

// StatusCode is the OPC UA quality of a read: the top two bits carry the
// severity, bits 16-27 the sub-code.
type StatusCode uint32

type Severity int

const (
	SeverityGood Severity = iota
	SeverityUncertain
	SeverityBad
)

func (s Severity) String() string {
	switch s {
	case SeverityGood:
		return "Good"
	case SeverityUncertain:
		return "Uncertain"
	default:
		return "Bad"
	}
}

const (
	StatusGood                               StatusCode = 0x00000000
	StatusGoodClamped                        StatusCode = 0x00300000
	StatusGoodLocalOverride                  StatusCode = 0x00960000
	StatusUncertainNoCommunicationLastUsable StatusCode = 0x408F0000
	StatusUncertainLastUsableValue           StatusCode = 0x40900000
	StatusUncertainSensorNotAccurate         StatusCode = 0x40930000
	StatusUncertainEngineeringUnitsExceeded  StatusCode = 0x40940000
	StatusUncertainSubNormal                 StatusCode = 0x40950000
	StatusBadUnexpectedError                 StatusCode = 0x80010000
	StatusBadInternalError                   StatusCode = 0x80020000
	StatusBadCommunicationError              StatusCode = 0x80050000
	StatusBadTimeout                         StatusCode = 0x800A0000
	StatusBadUserAccessDenied                StatusCode = 0x801F0000
	StatusBadWaitingForInitialData           StatusCode = 0x80320000
	StatusBadNodeIDInvalid                   StatusCode = 0x80330000
	StatusBadNodeIDUnknown                   StatusCode = 0x80340000
	StatusBadAttributeIDInvalid              StatusCode = 0x80350000
	StatusBadNotReadable                     StatusCode = 0x803A0000
	StatusBadOutOfService                    StatusCode = 0x808D0000
)

var statusNames = map[StatusCode]string{
	StatusGood:                               "Good",
	StatusGoodClamped:                        "GoodClamped",
	StatusGoodLocalOverride:                  "GoodLocalOverride",
	StatusUncertainNoCommunicationLastUsable: "UncertainNoCommunicationLastUsableValue",
	StatusUncertainLastUsableValue:           "UncertainLastUsableValue",
	StatusUncertainSensorNotAccurate:         "UncertainSensorNotAccurate",
	StatusUncertainEngineeringUnitsExceeded:  "UncertainEngineeringUnitsExceeded",
	StatusUncertainSubNormal:                 "UncertainSubNormal",
	StatusBadUnexpectedError:                 "BadUnexpectedError",
	StatusBadInternalError:                   "BadInternalError",
	StatusBadCommunicationError:              "BadCommunicationError",
	StatusBadTimeout:                         "BadTimeout",
	StatusBadUserAccessDenied:                "BadUserAccessDenied",
	StatusBadWaitingForInitialData:           "BadWaitingForInitialData",
	StatusBadNodeIDInvalid:                   "BadNodeIdInvalid",
	StatusBadNodeIDUnknown:                   "BadNodeIdUnknown",
	StatusBadAttributeIDInvalid:              "BadAttributeIdInvalid",
	StatusBadNotReadable:                     "BadNotReadable",
	StatusBadOutOfService:                    "BadOutOfService",
}

func (c StatusCode) Severity() Severity {
	switch c >> 30 {
	case 0:
		return SeverityGood
	case 1:
		return SeverityUncertain
	default:
		return SeverityBad
	}
}

func (c StatusCode) IsGood() bool { return c.Severity() == SeverityGood }

func (c StatusCode) IsUncertain() bool { return c.Severity() == SeverityUncertain }

func (c StatusCode) IsBad() bool { return c.Severity() == SeverityBad }

// String returns the symbolic name, ignoring the info bits.
func (c StatusCode) String() string {
	if name, ok := statusNames[c&0xFFFF0000]; ok {
		return name
	}
	return fmt.Sprintf("%s (0x%08X)", c.Severity(), uint32(c))
}
