// Package event envuelve operaciones de la API con hooks PRE y POST.
//
// Las definiciones (repository.EventDefinition) se cargan por request en un
// Config. Para cada definición activa que escucha el evento en la posición
// dada, el Pipeline resuelve el Handler por nombre de módulo en el Registry,
// evalúa sus condiciones, ejecuta la acción y escribe un registro de
// auditoría propio para la invocación.
//
// El conjunto de handlers es cerrado (Kind). Un módulo desconocido no tiene
// handler: se loguea y se saltea.
package event
