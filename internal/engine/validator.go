package engine

import (
	"fmt"

	"github.com/wwwzy/PumpCPQ/internal/model"
)

const (
	SuggestionInvalid = "Review the flagged items: adjust the power supply, motor size, mount or materials, or request an engineering approval before ordering."
	SuggestionValid   = "Configuration meets all catalog constraints."

	singlePhaseMaxHP = 3.0
	threePhaseMinHP  = 5.0
	atexMinHP        = 5.0
)

// Validate 检查配置是否满足全部业务约束，返回所有违规项而不是第一条。
// 规则之间相互独立，结果与检查顺序无关。
func Validate(cfg model.PumpConfiguration, req model.PumpRequirements) model.ValidationResult {
	var v []string

	required := []struct {
		name string
		ok   bool
	}{
		{"family", cfg.Family != ""},
		{"motor_hp", cfg.MotorHP > 0},
		{"voltage", cfg.Voltage != ""},
		{"seal_type", cfg.SealType != ""},
		{"material", cfg.Material != ""},
		{"mount", cfg.Mount != ""},
	}
	for _, r := range required {
		if !r.ok {
			v = append(v, fmt.Sprintf("Configuration is missing %s.", r.name))
		}
	}

	switch cfg.Voltage {
	case model.Power230V1Ph:
		if cfg.MotorHP > singlePhaseMaxHP {
			v = append(v, fmt.Sprintf("230V single-phase supply supports motors up to %g HP; selected motor is %g HP.", singlePhaseMaxHP, cfg.MotorHP))
		}
	case model.Power460V3Ph:
		if cfg.MotorHP < threePhaseMinHP {
			v = append(v, fmt.Sprintf("460V three-phase supply requires a motor of at least %g HP; selected motor is %g HP.", threePhaseMinHP, cfg.MotorHP))
		}
	}

	if cfg.Mount == model.MountCloseCoupled && cfg.MotorHP > closeCoupledMaxHP {
		v = append(v, fmt.Sprintf("Close-coupled mount supports motors up to %g HP; selected motor is %g HP.", closeCoupledMaxHP, cfg.MotorHP))
	}

	if req.Environment == model.EnvATEX && cfg.ATEX {
		ok := cfg.Material == model.MaterialStainless &&
			cfg.SealType == model.SealMechanical &&
			cfg.Voltage == model.Power460V3Ph &&
			cfg.Mount == model.MountBase &&
			cfg.MotorHP >= atexMinHP
		if !ok {
			v = append(v, fmt.Sprintf("ATEX installations require Stainless material, a Mechanical seal, 460V three-phase supply, a Base mount and a motor of at least %g HP.", atexMinHP))
		}
	}

	if len(v) == 0 {
		return model.ValidationResult{IsValid: true, Violations: []string{}, Suggestion: SuggestionValid}
	}
	return model.ValidationResult{IsValid: false, Violations: v, Suggestion: SuggestionInvalid}
}
