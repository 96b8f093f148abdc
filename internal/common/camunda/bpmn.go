package camunda

import (
	"bytes"
	"fmt"
	"text/template"
)

// ProcessID is the BPMN process id deployed for a task key.
func ProcessID(taskKey string) string {
	return "task-" + taskKey
}

var processTmpl = template.Must(template.New("process").Parse(`<?xml version="1.0" encoding="UTF-8"?>
<bpmn:definitions xmlns:bpmn="http://www.omg.org/spec/BPMN/20100524/MODEL"
  xmlns:zeebe="http://camunda.org/schema/zeebe/1.0"
  id="definitions-{{.ID}}" targetNamespace="http://bpmn.io/schema/bpmn">
  <bpmn:process id="{{.ID}}" name="{{.Key}}" isExecutable="true">
    <bpmn:startEvent id="start">
      <bpmn:outgoing>to-task</bpmn:outgoing>
    </bpmn:startEvent>
    <bpmn:serviceTask id="run-task" name="{{.Key}}">
      <bpmn:extensionElements>
        <zeebe:taskDefinition type="{{.Key}}" retries="{{.Retries}}" />
      </bpmn:extensionElements>
      <bpmn:incoming>to-task</bpmn:incoming>
      <bpmn:outgoing>to-end</bpmn:outgoing>
    </bpmn:serviceTask>
    <bpmn:endEvent id="end">
      <bpmn:incoming>to-end</bpmn:incoming>
    </bpmn:endEvent>
    <bpmn:sequenceFlow id="to-task" sourceRef="start" targetRef="run-task" />
    <bpmn:sequenceFlow id="to-end" sourceRef="run-task" targetRef="end" />
  </bpmn:process>
</bpmn:definitions>
`))

// ProcessXML renders a process with one service task of type taskKey.
func ProcessXML(taskKey string, retries int) ([]byte, error) {
	if taskKey == "" {
		return nil, fmt.Errorf("task key is required")
	}
	var buf bytes.Buffer
	err := processTmpl.Execute(&buf, struct {
		ID      string
		Key     string
		Retries int
	}{ProcessID(taskKey), taskKey, retries})
	if err != nil {
		return nil, fmt.Errorf("render process for %s: %w", taskKey, err)
	}
	return buf.Bytes(), nil
}
